package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/engine"
	"github.com/emberworks/chronicle/pkg/store"
)

// Server is the API server for the chronicle memory system.
type Server struct {
	config Config
	engine *engine.Engine
	store  store.Driver
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The store is injected alongside the engine for plain record lookups that
// need no lifecycle logic.
func NewServer(config Config, eng *engine.Engine, st store.Driver, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: eng,
		store:  st,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	app.Post("/memories", s.handleCapture)
	app.Get("/memories/:id", s.handleGetMemory)

	app.Post("/sessions/:id/condense", s.handleCondense)

	app.Get("/episodes/:id", s.handleGetEpisode)
	app.Post("/episodes/:id/promote", s.handlePromote)

	app.Get("/world/:id", s.handleGetWorld)

	app.Post("/retrieve", s.handleRetrieve)

	app.Get("/recognition/:observer/:subject", s.handleRecognition)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
