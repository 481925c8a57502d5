package handler

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/shortlink/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger    *zap.Logger
	Shortener service.ShortenerService
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger    *zap.Logger
	shortener service.ShortenerService
	validate  *validator.Validate
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &APIHandler{
		logger:    logger,
		shortener: deps.Shortener,
		validate:  validate,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		api.Post("/shorten", h.Shorten)

		urls := api.Group("/url")
		{
			urls.Patch("/:id/status", h.UpdateStatus)
			urls.Patch("/:id", h.UpdateTarget)
			urls.Get("/:id/stats", h.Stats)
		}
	}
}

// ShortenRequest represents the request body for creating a short URL.
type ShortenRequest struct {
	OriginalURL string `json:"originalUrl" validate:"required"`
}

// ShortenResponse represents the response for creating a short URL.
type ShortenResponse struct {
	ShortURL string `json:"shortUrl"`
	ID       string `json:"id"`
}

// UpdateStatusRequest represents the request body for enabling or disabling a URL.
type UpdateStatusRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// UpdateTargetRequest represents the request body for changing the target URL.
type UpdateTargetRequest struct {
	OriginalURL string `json:"originalUrl" validate:"required"`
}

// MessageResponse confirms a mutation.
type MessageResponse struct {
	Message string `json:"message"`
}

// Shorten handles POST /api/shorten
func (h *APIHandler) Shorten(c *fiber.Ctx) error {
	var req ShortenRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err)
	}

	record, err := h.shortener.Create(requestContext(c), req.OriginalURL)
	if err != nil {
		return h.fail(c, "failed to shorten url", err)
	}

	return c.JSON(ShortenResponse{
		ShortURL: record.ShortURL,
		ID:       record.Identifier,
	})
}

// UpdateStatus handles PATCH /api/url/:id/status
func (h *APIHandler) UpdateStatus(c *fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateStatusRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, errors.New("enabled must be a boolean"))
	}

	if _, err := h.shortener.UpdateStatus(requestContext(c), id, *req.Enabled); err != nil {
		return h.fail(c, "failed to update url status", err, zap.String("id", id))
	}

	message := "URL disabled successfully."
	if *req.Enabled {
		message = "URL enabled successfully."
	}
	return c.JSON(MessageResponse{Message: message})
}

// UpdateTarget handles PATCH /api/url/:id
func (h *APIHandler) UpdateTarget(c *fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateTargetRequest
	if err := h.parse(c, &req); err != nil {
		return badRequest(c, err)
	}

	if _, err := h.shortener.UpdateTarget(requestContext(c), id, req.OriginalURL); err != nil {
		return h.fail(c, "failed to update url target", err, zap.String("id", id))
	}

	return c.JSON(MessageResponse{Message: "URL updated successfully."})
}

// Stats handles GET /api/url/:id/stats
func (h *APIHandler) Stats(c *fiber.Ctx) error {
	id := c.Params("id")

	stats, err := h.shortener.Stats(requestContext(c), id)
	if err != nil {
		return h.fail(c, "failed to load url stats", err, zap.String("id", id))
	}

	return c.JSON(stats)
}

func (h *APIHandler) parse(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.New("invalid request body")
	}
	if err := h.validate.Struct(out); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return errors.New(fieldErrs[0].Field() + " is required")
		}
		return err
	}
	return nil
}

// fail maps service errors onto HTTP responses. Only dependency failures are
// logged at error level; the rest are caller mistakes.
func (h *APIHandler) fail(c *fiber.Ctx, msg string, err error, fields ...zap.Field) error {
	status, body := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
	} else {
		h.logger.Debug(msg, append(fields, zap.Error(err))...)
	}
	return c.Status(status).JSON(fiber.Map{"error": body})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "URL not found"
	case errors.Is(err, service.ErrConflict):
		return fiber.StatusConflict, "could not allocate a unique short id, try again"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
