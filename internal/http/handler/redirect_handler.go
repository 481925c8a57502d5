package handler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/shortlink/internal/app/service"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Check reports whether a backing dependency is reachable.
type Check func(ctx context.Context) error

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger    *zap.Logger
	Shortener service.ShortenerService
	// Checks are run by the readiness probe, keyed by dependency name.
	Checks map[string]Check
}

// RedirectHandler serves short-link redirects and health probes.
type RedirectHandler struct {
	logger    *zap.Logger
	shortener service.ShortenerService
	checks    map[string]Check
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:    logger,
		shortener: deps.Shortener,
		checks:    deps.Checks,
	}
}

// Register wires redirect routes onto the provided router. It must run after
// the API routes so /api/:id does not shadow them.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/health/ready", h.Ready)
	router.Get("/api/:id", h.Resolve)
}

// Health is a liveness probe so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "shortlink",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings every dependency and answers 503 if any of them fails.
func (h *RedirectHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(requestContext(c), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := fiber.StatusOK
	results := make(fiber.Map, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			results[name] = "unavailable"
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != fiber.StatusOK {
		state = "not ready"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": state,
		"checks": results,
	})
}

// Resolve handles GET /api/:id with a 302 to the original URL.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	id := c.Params("id")

	target, err := h.shortener.Resolve(requestContext(c), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "URL not found",
			})
		}
		h.logger.Error("failed to resolve short url", zap.Error(err), zap.String("id", id))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	h.logger.Debug("redirecting short url", zap.String("id", id), zap.String("target", target.OriginalURL))
	return c.Redirect(target.OriginalURL, fiber.StatusFound)
}
