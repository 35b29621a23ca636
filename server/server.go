package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tbxark/hrflow/types"
	"github.com/tbxark/hrflow/workflow"
)

// Router is the dialogue engine as seen by the transport.
type Router interface {
	Handle(ctx context.Context, user, message string) (*types.Result, error)
	Registry() *workflow.Registry
}

type RouteRequest struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type WorkflowInfo struct {
	Kind          workflow.Kind   `json:"kind"`
	Description   string          `json:"description,omitempty"`
	Required      []string        `json:"required"`
	IdentityField string          `json:"identity_field,omitempty"`
	Schema        json.RawMessage `json:"schema,omitempty"`
}

type Server struct {
	app            *fiber.App
	router         Router
	requestTimeout time.Duration
	logger         *slog.Logger
}

type Option func(*Server)

func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(router Router, opts ...Option) *Server {
	s := &Server{
		router: router,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "hrflow",
		BodyLimit:             1024 * 1024,
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})
	s.app.Use(recover.New())
	s.registerRoutes()
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Post("/route", s.route)
	s.app.Get("/workflows", s.workflows)
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func (s *Server) route(c *fiber.Ctx) error {
	var req RouteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.User) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "user is required"})
	}

	ctx := c.UserContext()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	result, err := s.router.Handle(ctx, req.User, req.Message)
	if err != nil {
		s.logger.Error("Route failed", "user", req.User, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
	return c.JSON(result)
}

func (s *Server) workflows(c *fiber.Ctx) error {
	registry := s.router.Registry()
	out := make([]WorkflowInfo, 0, len(workflow.Kinds))
	for _, kind := range registry.Kinds() {
		spec, _ := registry.Spec(kind)
		info := WorkflowInfo{
			Kind:          kind,
			Description:   spec.Description,
			Required:      spec.Required,
			IdentityField: spec.IdentityField,
		}
		if schema, err := registry.JSONSchema(kind); err == nil {
			info.Schema = json.RawMessage(schema)
		}
		out = append(out, info)
	}
	return c.JSON(out)
}
