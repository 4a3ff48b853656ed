package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the chronicle.toml file
// (if found in configDir or the working directory), and binds environment
// variables with the CHRONICLE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CHRONICLE_API_LISTEN, CHRONICLE_ORACLE_API_KEY, etc.)
//  3. chronicle.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery.
	v.SetConfigName("chronicle")
	v.SetConfigType("toml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: CHRONICLE_STORAGE_PROVIDER, CHRONICLE_ORACLE_API_KEY, etc.
	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load unmarshals the viper state into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Cache
	v.SetDefault("cache.provider", d.Cache.Provider)
	v.SetDefault("cache.addr", d.Cache.Addr)
	v.SetDefault("cache.password", d.Cache.Password)
	v.SetDefault("cache.db", d.Cache.DB)
	v.SetDefault("cache.ttl_hours", d.Cache.TTLHours)

	// Oracle
	v.SetDefault("oracle.provider", d.Oracle.Provider)
	v.SetDefault("oracle.target", d.Oracle.Target)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.api_key", d.Oracle.APIKey)
	v.SetDefault("oracle.timeout_seconds", d.Oracle.TimeoutSeconds)

	// Memory lifecycle
	v.SetDefault("memory.session_ttl_hours", d.Memory.SessionTTLHours)
	v.SetDefault("memory.episode_ttl_hours", d.Memory.EpisodeTTLHours)
	v.SetDefault("memory.promote_threshold", d.Memory.PromoteThreshold)
	v.SetDefault("memory.capture_timeout_ms", d.Memory.CaptureTimeoutMS)
	v.SetDefault("memory.max_content_bytes", d.Memory.MaxContentBytes)
	v.SetDefault("memory.embed_workers", d.Memory.EmbedWorkers)
	v.SetDefault("memory.embed_queue_size", d.Memory.EmbedQueueSize)

	// Scheduler
	v.SetDefault("scheduler.spec", d.Scheduler.Spec)
}
