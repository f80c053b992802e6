package api

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jeovahfialho/capital-gains/internal/ingestion"
	"github.com/jeovahfialho/capital-gains/internal/service"
	"github.com/jeovahfialho/capital-gains/internal/storage/postgres"
	"github.com/jeovahfialho/capital-gains/pkg/logger"
	"go.uber.org/zap"
)

const version = "1.0.0"

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type CacheInvalidator interface {
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

type Handler struct {
	calculator *service.CalculatorService
	replay     *service.ReplayService
	cache      CacheInvalidator
	checks     map[string]HealthChecker
}

// NewHandler builds the HTTP handler. replay and cache are optional; their
// routes answer 503 when they are nil.
func NewHandler(
	calculator *service.CalculatorService,
	replay *service.ReplayService,
	cache CacheInvalidator,
	checks map[string]HealthChecker,
) *Handler {
	if checks == nil {
		checks = map[string]HealthChecker{}
	}
	return &Handler{
		calculator: calculator,
		replay:     replay,
		cache:      cache,
		checks:     checks,
	}
}

// Calculate evaluates every JSON array found in the request body.
func (h *Handler) Calculate(c *fiber.Ctx) error {
	start := time.Now()
	ctx := c.UserContext()

	results, err := h.calculator.CalculateText(ctx, bytes.NewReader(c.Body()))
	if err != nil {
		return h.inputFailure(c, err, "erro ao calcular impostos")
	}

	c.Set("X-Processing-Time", time.Since(start).String())
	return c.JSON(results)
}

func (h *Handler) ImportBatches(c *fiber.Ctx) error {
	if h.replay == nil {
		return h.unavailable(c, "armazenamento de lotes não configurado")
	}

	source := c.Query("source", "api")
	ids, err := h.replay.Import(c.UserContext(), source, bytes.NewReader(c.Body()))
	if err != nil {
		return h.inputFailure(c, err, "erro ao importar lotes")
	}

	return c.Status(fiber.StatusCreated).JSON(ImportResponse{
		BatchIDs: ids,
		Count:    len(ids),
	})
}

func (h *Handler) ListBatches(c *fiber.Ctx) error {
	if h.replay == nil {
		return h.unavailable(c, "armazenamento de lotes não configurado")
	}

	batches, err := h.replay.List(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		logger.WithContext(c.UserContext()).Error("erro ao listar lotes", zap.Error(err))
		return h.fail(c, fiber.StatusInternalServerError, "erro ao listar lotes")
	}

	return c.JSON(ListBatchesResponse{
		Data:  batches,
		Count: len(batches),
	})
}

func (h *Handler) ReplayBatch(c *fiber.Ctx) error {
	if h.replay == nil {
		return h.unavailable(c, "armazenamento de lotes não configurado")
	}

	id := c.Params("id")
	results, err := h.replay.Replay(c.UserContext(), id)
	if errors.Is(err, postgres.ErrBatchNotFound) {
		return h.fail(c, fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		logger.WithContext(c.UserContext()).Error("erro ao reprocessar lote",
			zap.String("batch_id", id),
			zap.Error(err))
		return h.fail(c, fiber.StatusInternalServerError, "erro ao reprocessar lote")
	}

	return c.JSON(results[0])
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Version:   version,
		Timestamp: time.Now(),
	})
}

func (h *Handler) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	services := make(map[string]ServiceHealth, len(h.checks))
	status := "ready"

	for name, check := range h.checks {
		start := time.Now()
		if err := check.HealthCheck(ctx); err != nil {
			services[name] = ServiceHealth{Status: "unhealthy", Error: err.Error()}
			status = "not_ready"
			continue
		}
		services[name] = ServiceHealth{Status: "healthy", Latency: time.Since(start).String()}
	}

	response := HealthResponse{
		Status:    status,
		Version:   version,
		Timestamp: time.Now(),
		Services:  services,
	}

	if status != "ready" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}

func (h *Handler) InvalidateCache(c *fiber.Ctx) error {
	if h.cache == nil {
		return h.unavailable(c, "cache não configurado")
	}

	pattern := c.Params("pattern", "*")
	removed, err := h.cache.DeletePattern(c.UserContext(), pattern)
	if err != nil {
		logger.WithContext(c.UserContext()).Error("erro ao invalidar cache", zap.Error(err))
		return h.fail(c, fiber.StatusInternalServerError, "erro ao invalidar cache")
	}

	return c.JSON(InvalidateCacheResponse{
		Status:  "success",
		Removed: removed,
		Pattern: pattern,
	})
}

// inputFailure answers 400 for problems in the submitted operations and 500
// for everything else.
func (h *Handler) inputFailure(c *fiber.Ctx, err error, message string) error {
	if ingestion.IsInputError(err) {
		return h.fail(c, fiber.StatusBadRequest, err.Error())
	}

	logger.WithContext(c.UserContext()).Error(message, zap.Error(err))
	return h.fail(c, fiber.StatusInternalServerError, message)
}

func (h *Handler) unavailable(c *fiber.Ctx, message string) error {
	return h.fail(c, fiber.StatusServiceUnavailable, message)
}

func (h *Handler) fail(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: getRequestID(c),
		Timestamp: time.Now(),
	})
}
