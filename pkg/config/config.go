package config

import "fmt"

const (
	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite provider")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}

	switch c.Embedding.Provider {
	case "ollama":
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions == 0 {
		return fmt.Errorf("embedding.dimensions cannot be 0")
	}

	switch c.Cache.Provider {
	case "", "memory":
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the redis provider")
		}
	default:
		return fmt.Errorf("unknown cache.provider %q", c.Cache.Provider)
	}

	if c.Oracle.Provider != "openai" {
		return fmt.Errorf("unknown oracle.provider %q", c.Oracle.Provider)
	}
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("oracle.api_key is required")
	}

	if c.Memory.PromoteThreshold < 0 || c.Memory.PromoteThreshold > 1 {
		return fmt.Errorf("memory.promote_threshold must be in [0, 1]")
	}

	return nil
}
