package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// validConfig returns defaults patched to pass Validate.
func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Oracle.APIKey = "sk-test"
	return cfg
}

var _ = Describe("NewDefaultConfig", func() {
	It("defaults to sqlite storage", func() {
		cfg := NewDefaultConfig()
		Expect(cfg.Storage.Provider).To(Equal("sqlite"))
		Expect(cfg.Storage.SQLitePath).To(Equal("chronicle.db"))
	})

	It("defaults the memory lifecycle knobs", func() {
		cfg := NewDefaultConfig()
		Expect(cfg.Memory.SessionTTLHours).To(Equal(uint(4)))
		Expect(cfg.Memory.EpisodeTTLHours).To(Equal(uint(48)))
		Expect(cfg.Memory.PromoteThreshold).To(Equal(0.75))
		Expect(cfg.Memory.CaptureTimeoutMS).To(Equal(uint(300)))
		Expect(cfg.Memory.MaxContentBytes).To(Equal(uint(8192)))
	})

	It("bounds oracle calls by default", func() {
		cfg := NewDefaultConfig()
		Expect(cfg.Oracle.TimeoutSeconds).To(Equal(uint(30)))
	})

	It("defaults to an ollama embedder with 768 dimensions", func() {
		cfg := NewDefaultConfig()
		Expect(cfg.Embedding.Provider).To(Equal("ollama"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(768)))
	})
})

var _ = Describe("Validate", func() {
	It("accepts defaults once an oracle key is set", func() {
		Expect(validConfig().Validate()).To(Succeed())
	})

	It("rejects an unknown storage provider", func() {
		cfg := validConfig()
		cfg.Storage.Provider = "cassandra"
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("requires a DSN for postgres storage", func() {
		cfg := validConfig()
		cfg.Storage.Provider = "postgres"
		cfg.Storage.PostgresDSN = ""
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg.Storage.PostgresDSN = "postgres://localhost/chronicle"
		Expect(cfg.Validate()).To(Succeed())
	})

	It("requires an api key for the openai embedder", func() {
		cfg := validConfig()
		cfg.Embedding.Provider = "openai"
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg.Embedding.APIKey = "sk-embed"
		Expect(cfg.Validate()).To(Succeed())
	})

	It("rejects zero embedding dimensions", func() {
		cfg := validConfig()
		cfg.Embedding.Dimensions = 0
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("requires an address for the redis cache", func() {
		cfg := validConfig()
		cfg.Cache.Provider = "redis"
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg.Cache.Addr = "localhost:6379"
		Expect(cfg.Validate()).To(Succeed())
	})

	It("requires the oracle api key", func() {
		cfg := NewDefaultConfig()
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("bounds the promote threshold", func() {
		cfg := validConfig()
		cfg.Memory.PromoteThreshold = 1.5
		Expect(cfg.Validate()).NotTo(Succeed())

		cfg.Memory.PromoteThreshold = -0.1
		Expect(cfg.Validate()).NotTo(Succeed())
	})
})

var _ = Describe("InitViper and Load", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chronicle-config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("loads pure defaults when no file exists", func() {
		v, err := InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := Load(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.API.Listen).To(Equal(":8080"))
		Expect(cfg.Scheduler.Spec).To(Equal("@every 5m"))
	})

	It("reads chronicle.toml from the config directory", func() {
		toml := `
[api]
listen = ":9090"

[memory]
promote_threshold = 0.9
`
		err := os.WriteFile(filepath.Join(tmpDir, "chronicle.toml"), []byte(toml), 0o644)
		Expect(err).NotTo(HaveOccurred())

		v, err := InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := Load(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.API.Listen).To(Equal(":9090"))
		Expect(cfg.Memory.PromoteThreshold).To(Equal(0.9))
		// Untouched keys keep their defaults.
		Expect(cfg.Storage.Provider).To(Equal("sqlite"))
	})

	It("lets environment variables override the file", func() {
		toml := "[api]\nlisten = \":9090\"\n"
		err := os.WriteFile(filepath.Join(tmpDir, "chronicle.toml"), []byte(toml), 0o644)
		Expect(err).NotTo(HaveOccurred())

		os.Setenv("CHRONICLE_API_LISTEN", ":7070")
		defer os.Unsetenv("CHRONICLE_API_LISTEN")

		v, err := InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := Load(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.API.Listen).To(Equal(":7070"))
	})

	It("fails on a malformed config file", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "chronicle.toml"), []byte("not [valid toml"), 0o644)
		Expect(err).NotTo(HaveOccurred())

		_, err = InitViper(tmpDir)
		Expect(err).To(HaveOccurred())
	})
})
