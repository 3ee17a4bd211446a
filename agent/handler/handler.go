// Package handler exposes the relay over HTTP: the web chat, its poll
// endpoint and the messaging-provider webhooks.
package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	orchestrator "github.com/tanpawarit/chative-order-relay/agent/agents/orchestrator"
	nodex "github.com/tanpawarit/chative-order-relay/agent/nodes"
	logx "github.com/tanpawarit/chative-order-relay/pkg/logger"
)

const allowedMethods = "GET, POST, OPTIONS"

type Config struct {
	AppName    string `split_words:"true" default:"chative-order-relay"`
	RequestLog bool   `split_words:"true" default:"true"`
	BodyLimit  int    `split_words:"true" default:"1048576"`
}

// Service is what the routes drive.
type Service interface {
	HandleChat(ctx context.Context, sessionID, text string, history []nodex.HistoryMessage) (string, error)
	HandlePoll(ctx context.Context, sessionID string) (orchestrator.PollResult, error)
	HandleRestaurantMessage(ctx context.Context, contact, text string) error
}

type Handler struct {
	svc Service
	log zerolog.Logger
}

func New(svc Service) *Handler {
	return &Handler{svc: svc, log: logx.Component("http")}
}

// NewApp builds the fiber app with every route and middleware mounted.
func NewApp(svc Service, cfg Config) *fiber.App {
	h := New(svc)

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          h.errorHandler,
	})

	app.Use(recover.New())
	if cfg.RequestLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(preflight)
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: allowedMethods,
	}))

	app.Get("/health", h.Health)

	api := app.Group("/api")
	api.Post("/chat", h.Chat)
	api.Post("/poll", h.Poll)
	api.Post("/webhook", h.EvolutionWebhook)
	api.Post("/webhook/twilio", h.TwilioWebhook)
	for _, path := range []string{"/chat", "/poll", "/webhook", "/webhook/twilio"} {
		api.All(path, methodNotAllowed)
	}

	return app
}

// preflight answers every OPTIONS request with an empty 200.
func preflight(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodOptions {
		return c.Next()
	}
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, allowedMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Origin, Content-Type, Accept, Authorization")
	// SendStatus would write the status text as the body
	c.Status(fiber.StatusOK)
	return nil
}

func methodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, "POST, OPTIONS")
	return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{"error": "method not allowed"})
}

func (h *Handler) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type chatRequest struct {
	SessionID string                 `json:"sessionId"`
	Message   string                 `json:"message"`
	Messages  []nodex.HistoryMessage `json:"messages"`
}

type chatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "sessionId and message are required")
	}

	reply, err := h.svc.HandleChat(c.UserContext(), req.SessionID, req.Message, req.Messages)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidMessage) || errors.Is(err, orchestrator.ErrInvalidSession) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("chat turn failed")
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
	return c.JSON(chatResponse{Message: reply, SessionID: strings.TrimSpace(req.SessionID)})
}

type pollRequest struct {
	SessionID string `json:"sessionId"`
}

type pollResponse struct {
	HasNewMessage bool   `json:"hasNewMessage"`
	Message       string `json:"message,omitempty"`
	// unix milliseconds
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (h *Handler) Poll(c *fiber.Ctx) error {
	var req pollRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "sessionId is required")
	}

	res, err := h.svc.HandlePoll(c.UserContext(), strings.TrimSpace(req.SessionID))
	if err != nil {
		h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("poll failed")
		return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
	}
	if !res.HasNewMessage {
		return c.JSON(pollResponse{})
	}
	return c.JSON(pollResponse{
		HasNewMessage: true,
		Message:       res.Message,
		Timestamp:     res.Timestamp.UnixMilli(),
	})
}
