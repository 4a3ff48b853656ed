package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/emberworks/chronicle/pkg/embeddings"
	"github.com/emberworks/chronicle/pkg/engine"
	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/oracle"
	"github.com/emberworks/chronicle/pkg/store"
)

// ErrorResponse is the JSON error body for all failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// fail maps engine and store errors onto HTTP statuses.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidEvent),
		errors.Is(err, store.ErrSelfRecognition):
		status = fiber.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, engine.ErrNoMemories):
		status = fiber.StatusNotFound
	case errors.Is(err, oracle.ErrOracle),
		errors.Is(err, embeddings.ErrEmbedding):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+param)
	}
	return id, nil
}

// handleCapture records one raw event.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	var req engine.CaptureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	m, err := s.engine.Capture(c.Context(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// handleGetMemory returns a single session memory by id.
func (s *Server) handleGetMemory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	m, err := s.store.SessionByID(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m)
}

// handleCondense condenses a finished session into an episode.
func (s *Server) handleCondense(c *fiber.Ctx) error {
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	episode, err := s.engine.Condense(c.Context(), sessionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(episode)
}

// handleGetEpisode returns a single episode by id.
func (s *Server) handleGetEpisode(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	episode, err := s.store.EpisodeByID(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(episode)
}

// handlePromote canonizes an episode into world lore.
func (s *Server) handlePromote(c *fiber.Ctx) error {
	episodeID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	w, err := s.engine.Promote(c.Context(), episodeID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(w)
}

// handleGetWorld returns a single world memory by id.
func (s *Server) handleGetWorld(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	w, err := s.store.WorldByID(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(w)
}

// handleRetrieve runs a semantic query across tiers. An empty result list
// is a successful response, not an error.
func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	var q engine.RetrieveQuery
	if err := c.BodyParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	fragments, err := s.engine.Retrieve(c.Context(), &q)
	if err != nil {
		return fail(c, err)
	}
	if fragments == nil {
		fragments = []lore.Fragment{}
	}
	return c.JSON(fragments)
}

// handleRecognition returns what observer knows about subject.
func (s *Server) handleRecognition(c *fiber.Ctx) error {
	observerID, err := parseID(c, "observer")
	if err != nil {
		return err
	}
	subjectID, err := parseID(c, "subject")
	if err != nil {
		return err
	}

	r, err := s.engine.Recognition(c.Context(), observerID, subjectID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(r)
}
