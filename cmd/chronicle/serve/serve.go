// Package servecmder provides the serve command that runs the memory engine,
// lifecycle scheduler, and API server together.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/api"
	"github.com/emberworks/chronicle/pkg/config"
	"github.com/emberworks/chronicle/pkg/embeddings"
	"github.com/emberworks/chronicle/pkg/embeddings/cache"
	embeddingutils "github.com/emberworks/chronicle/pkg/embeddings/utils"
	"github.com/emberworks/chronicle/pkg/engine"
	"github.com/emberworks/chronicle/pkg/engine/worker"
	"github.com/emberworks/chronicle/pkg/logger"
	"github.com/emberworks/chronicle/pkg/oracle"
	oracleopenai "github.com/emberworks/chronicle/pkg/oracle/openai"
	"github.com/emberworks/chronicle/pkg/scheduler"
	"github.com/emberworks/chronicle/pkg/store"
	"github.com/emberworks/chronicle/pkg/store/memstore"
	"github.com/emberworks/chronicle/pkg/store/postgres"
	"github.com/emberworks/chronicle/pkg/store/sqlite"
)

// serveFlags is the flag registry for the serve command; each entry binds a
// CLI flag to its dotted viper key so flag > env > file > default holds.
var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name: "listen", Shorthand: "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagStorageProvider: {
		Name:        "storage-provider",
		ViperKey:    "storage.provider",
		Description: "Storage backend (sqlite, postgres, memory)",
	},
	config.FlagSQLite: {
		Name: "sqlite", Shorthand: "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite database file",
	},
	config.FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string",
	},
	config.FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (ollama, openai)",
	},
	config.FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	config.FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagOracleModel: {
		Name:        "oracle-model",
		ViperKey:    "oracle.model",
		Description: "Chat model for event analysis",
	},
	config.FlagSchedulerSpec: {
		Name:        "scheduler-spec",
		ViperKey:    "scheduler.spec",
		Description: "Cron expression for the lifecycle sweep",
	},
}

var boundFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagOracleModel,
	config.FlagSchedulerSpec,
}

type serveCommander struct {
	listen          string
	storageProvider string
	sqlitePath      string
	postgresDSN     string
	embedProvider   string
	embedTarget     string
	embedModel      string
	embedDims       uint
	oracleModel     string
	schedulerSpec   string

	debug  bool
	logger *zap.Logger
}

const serveLongDesc string = `Run the chronicle memory engine.

Starts the API server, the embedding backfill workers, and the lifecycle
scheduler that expires stale memories and auto-promotes important episodes.`

const serveShortDesc string = "Run the chronicle memory engine"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	var v *viper.Viper

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("could not get config flag: %v", err)
			}

			v, err = config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, boundFlags)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return cmder.run(cfg)
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embedProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embedTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.embedDims)
	config.AddStringFlag(cmd, serveFlags, config.FlagOracleModel, &cmder.oracleModel)
	config.AddStringFlag(cmd, serveFlags, config.FlagSchedulerSpec, &cmder.schedulerSpec)

	return cmd
}

func (c *serveCommander) run(cfg *config.Config) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	ctx := context.Background()

	driver, err := c.newStoreDriver(ctx, cfg)
	if err != nil {
		return err
	}
	defer driver.Close()

	embedder, err := c.newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()

	orc, err := c.newOracle(cfg)
	if err != nil {
		return err
	}
	defer orc.Close()

	pool, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Embedder:   embedder,
		NumWorkers: cfg.Memory.EmbedWorkers,
		QueueSize:  cfg.Memory.EmbedQueueSize,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Store:            driver,
		Oracle:           orc,
		Embedder:         embedder,
		Pool:             pool,
		SessionTTL:       time.Duration(cfg.Memory.SessionTTLHours) * time.Hour,
		EpisodeTTL:       time.Duration(cfg.Memory.EpisodeTTLHours) * time.Hour,
		PromoteThreshold: cfg.Memory.PromoteThreshold,
		CaptureTimeout:   time.Duration(cfg.Memory.CaptureTimeoutMS) * time.Millisecond,
		OracleTimeout:    time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second,
		MaxContentBytes:  int(cfg.Memory.MaxContentBytes),
		Logger:           c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Store:  driver,
		Engine: eng,
		Spec:   cfg.Scheduler.Spec,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	server := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, eng, driver, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		sched.Stop()
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	// Shutdown order: stop accepting requests, stop the sweep, then drain
	// in-flight embedding jobs before the store closes.
	if err := server.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", zap.Error(err))
	}
	sched.Stop()
	pool.Close()
	return nil
}

func (c *serveCommander) newStoreDriver(ctx context.Context, cfg *config.Config) (store.Driver, error) {
	switch cfg.Storage.Provider {
	case "sqlite":
		driver, err := sqlite.NewDriver(sqlite.Config{
			DBPath:     cfg.Storage.SQLitePath,
			Dimensions: cfg.Embedding.Dimensions,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		return driver, nil

	case "postgres":
		driver, err := postgres.NewDriver(ctx, postgres.Config{
			DSN:        cfg.Storage.PostgresDSN,
			Dimensions: cfg.Embedding.Dimensions,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		return driver, nil

	case "memory":
		c.logger.Info("using in-memory storage")
		return memstore.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func (c *serveCommander) newEmbedder(ctx context.Context, cfg *config.Config) (embeddings.Embedder, error) {
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	switch cfg.Cache.Provider {
	case "redis":
		backend, err := cache.NewRedisBackend(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("creating redis cache: %w", err)
		}
		return cache.NewEmbedder(embedder, backend, c.logger), nil

	case "memory":
		return cache.NewEmbedder(embedder, cache.NewMemoryBackend(), c.logger), nil

	case "":
		return embedder, nil

	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Cache.Provider)
	}
}

func (c *serveCommander) newOracle(cfg *config.Config) (oracle.Oracle, error) {
	switch cfg.Oracle.Provider {
	case "openai":
		orc, err := oracleopenai.NewClient(oracleopenai.Config{
			APIKey:  cfg.Oracle.APIKey,
			BaseURL: cfg.Oracle.Target,
			Model:   cfg.Oracle.Model,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating oracle: %w", err)
		}
		return orc, nil

	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Oracle.Provider)
	}
}
