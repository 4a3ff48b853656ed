package config

const (
	defaultStorageProvider = "sqlite"
	defaultSQLitePath      = "chronicle.db"

	defaultAPIListen = ":8080"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultOracleProvider       = "openai"
	defaultOracleModel          = "gpt-4o-mini"
	defaultOracleTimeoutSeconds = 30

	defaultCacheProvider = "memory"

	defaultSessionTTLHours  = 4
	defaultEpisodeTTLHours  = 48
	defaultPromoteThreshold = 0.75
	defaultCaptureTimeoutMS = 300
	defaultMaxContentBytes  = 8192
	defaultEmbedWorkers     = 3
	defaultEmbedQueueSize   = 256

	defaultSchedulerSpec = "@every 5m"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLitePath,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Cache: CacheConfig{
			Provider: defaultCacheProvider,
		},
		Oracle: OracleConfig{
			Provider:       defaultOracleProvider,
			Model:          defaultOracleModel,
			TimeoutSeconds: defaultOracleTimeoutSeconds,
		},
		Memory: MemoryConfig{
			SessionTTLHours:  defaultSessionTTLHours,
			EpisodeTTLHours:  defaultEpisodeTTLHours,
			PromoteThreshold: defaultPromoteThreshold,
			CaptureTimeoutMS: defaultCaptureTimeoutMS,
			MaxContentBytes:  defaultMaxContentBytes,
			EmbedWorkers:     defaultEmbedWorkers,
			EmbedQueueSize:   defaultEmbedQueueSize,
		},
		Scheduler: SchedulerConfig{
			Spec: defaultSchedulerSpec,
		},
	}
}
