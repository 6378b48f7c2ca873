// Package server exposes the session control API and the ingest and
// subscriber websocket endpoints.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/MustfainTariq/Jama-Translator/hub"
	"github.com/MustfainTariq/Jama-Translator/language"
	"github.com/MustfainTariq/Jama-Translator/metrics"
	"github.com/MustfainTariq/Jama-Translator/session"
	"github.com/MustfainTariq/Jama-Translator/translog"
)

// Server serves the HTTP and websocket API over a session orchestrator.
type Server struct {
	app    *fiber.App
	orch   *session.Orchestrator
	hub    *hub.Hub
	store  translog.Store
	logger *zap.SugaredLogger
	m      *metrics.Metrics
}

// New builds the fiber application and registers all routes. store may be
// nil when transcript counts are unavailable.
func New(orch *session.Orchestrator, h *hub.Hub, store translog.Store, logger *zap.SugaredLogger, m *metrics.Metrics) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		orch:   orch,
		hub:    h,
		store:  store,
		logger: logger,
		m:      m,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.app.Group("/v1")

	v1.Get("/languages", s.handleLanguages)

	v1.Post("/sessions", s.handleCreateSession)
	v1.Get("/sessions", s.handleListSessions)
	v1.Get("/sessions/:id", s.handleGetSession)
	v1.Post("/sessions/:id/start", s.handleStartSession)
	v1.Post("/sessions/:id/end", s.handleEndSession)

	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	v1.Use("/ingest", upgrade)
	v1.Get("/ingest", websocket.New(s.handleIngest))
	v1.Use("/sessions/:id/subscribe", upgrade)
	v1.Get("/sessions/:id/subscribe", websocket.New(s.handleSubscribe))
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve serves on an existing listener. Tests use this to bind port 0.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown drains connections and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber application for in-process request tests.
func (s *Server) App() *fiber.App {
	return s.app
}

type createSessionRequest struct {
	SourceLang     string   `json:"sourceLang"`
	TargetLangs    []string `json:"targetLangs"`
	LoggingEnabled bool     `json:"loggingEnabled"`
}

type sessionDetail struct {
	session.Session
	Subscribers     int   `json:"subscribers"`
	TranscriptCount int64 `json:"transcriptCount"`
}

func (s *Server) handleLanguages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"languages": language.Supported()})
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	sess, err := s.orch.Create(req.SourceLang, req.TargetLangs, req.LoggingEnabled)
	if err != nil {
		return s.sessionError(c, err)
	}
	s.logger.Infow("session created", "session", sess.ID, "source", sess.SourceLang, "targets", sess.TargetLangs)
	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sessions": s.orch.List()})
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.orch.Get(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}

	detail := sessionDetail{Session: sess}
	detail.Subscribers = s.orch.Subscribers(sess.ID)
	if s.store != nil {
		count, err := s.store.TranscriptCount(c.Context(), sess.ID)
		if err != nil {
			s.logger.Warnw("transcript count failed", "session", sess.ID, "error", err)
		} else {
			detail.TranscriptCount = count
		}
	}
	return c.JSON(detail)
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	sess, err := s.orch.Start(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(sess)
}

func (s *Server) handleEndSession(c *fiber.Ctx) error {
	sess, err := s.orch.End(c.Params("id"))
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(sess)
}

func (s *Server) sessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrNotAccepting):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, session.ErrUnknownLanguage), errors.Is(err, session.ErrNoTargetLanguages):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Errorw("session operation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
