package config

// Config represents the chronicle configuration stored as chronicle.toml.
// The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `mapstructure:"version" toml:"version"`
	Storage   StorageConfig   `mapstructure:"storage" toml:"storage"`
	API       APIConfig       `mapstructure:"api" toml:"api"`
	Embedding EmbeddingConfig `mapstructure:"embedding" toml:"embedding"`
	Cache     CacheConfig     `mapstructure:"cache" toml:"cache"`
	Oracle    OracleConfig    `mapstructure:"oracle" toml:"oracle"`
	Memory    MemoryConfig    `mapstructure:"memory" toml:"memory"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Provider is one of "sqlite", "postgres", "memory".
	Provider    string `mapstructure:"provider" toml:"provider,omitempty"`
	SQLitePath  string `mapstructure:"sqlite_path" toml:"sqlite_path,omitempty"`
	PostgresDSN string `mapstructure:"postgres_dsn" toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `mapstructure:"listen" toml:"listen,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is one of "ollama", "openai".
	Provider   string `mapstructure:"provider" toml:"provider,omitempty"`
	Target     string `mapstructure:"target" toml:"target,omitempty"`
	Model      string `mapstructure:"model" toml:"model,omitempty"`
	APIKey     string `mapstructure:"api_key" toml:"api_key,omitempty"`
	Dimensions uint   `mapstructure:"dimensions" toml:"dimensions,omitempty"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	// Provider is one of "redis", "memory", or "" to disable caching.
	Provider string `mapstructure:"provider" toml:"provider,omitempty"`
	Addr     string `mapstructure:"addr" toml:"addr,omitempty"`
	Password string `mapstructure:"password" toml:"password,omitempty"`
	DB       int    `mapstructure:"db" toml:"db,omitempty"`
	TTLHours uint   `mapstructure:"ttl_hours" toml:"ttl_hours,omitempty"`
}

// OracleConfig holds LLM analysis provider settings.
type OracleConfig struct {
	// Provider is "openai" (or any OpenAI-compatible gateway via Target).
	Provider string `mapstructure:"provider" toml:"provider,omitempty"`
	Target   string `mapstructure:"target" toml:"target,omitempty"`
	Model    string `mapstructure:"model" toml:"model,omitempty"`
	APIKey   string `mapstructure:"api_key" toml:"api_key,omitempty"`

	// TimeoutSeconds bounds summarization and narration calls.
	TimeoutSeconds uint `mapstructure:"timeout_seconds" toml:"timeout_seconds,omitempty"`
}

// MemoryConfig holds lifecycle tuning for the engine.
type MemoryConfig struct {
	SessionTTLHours   uint    `mapstructure:"session_ttl_hours" toml:"session_ttl_hours,omitempty"`
	EpisodeTTLHours   uint    `mapstructure:"episode_ttl_hours" toml:"episode_ttl_hours,omitempty"`
	PromoteThreshold  float64 `mapstructure:"promote_threshold" toml:"promote_threshold,omitempty"`
	CaptureTimeoutMS  uint    `mapstructure:"capture_timeout_ms" toml:"capture_timeout_ms,omitempty"`
	MaxContentBytes   uint    `mapstructure:"max_content_bytes" toml:"max_content_bytes,omitempty"`
	EmbedWorkers      uint    `mapstructure:"embed_workers" toml:"embed_workers,omitempty"`
	EmbedQueueSize    uint    `mapstructure:"embed_queue_size" toml:"embed_queue_size,omitempty"`
}

// SchedulerConfig holds lifecycle sweep settings.
type SchedulerConfig struct {
	// Spec is a cron expression, e.g. "@every 5m".
	Spec string `mapstructure:"spec" toml:"spec,omitempty"`
}
