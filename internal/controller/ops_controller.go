package controller

import (
	"context"
	"net/http"

	"travel-intel/internal/dto"
	"travel-intel/internal/pkg/logger"
	"travel-intel/internal/pkg/serverutils"
	"travel-intel/pkg/cache"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// CacheAdmin is the operator surface of the versioned cache.
type CacheAdmin interface {
	Stats() cache.Stats
	Clear(ctx context.Context, prefix string) (int, error)
}

type IOpsController interface {
	RegisterRoutes(r fiber.Router)
	CacheStats(ctx *fiber.Ctx) error
	ClearCache(ctx *fiber.Ctx) error
	Logs(ctx *fiber.Ctx) error
}

type opsController struct {
	cache   CacheAdmin
	logs    logger.LogReader
	metrics http.Handler
}

// NewOpsController serves cache administration, the structured log and, when
// metrics is set, a Prometheus scrape endpoint.
func NewOpsController(cache CacheAdmin, logs logger.LogReader, metrics http.Handler) IOpsController {
	return &opsController{cache: cache, logs: logs, metrics: metrics}
}

func (c *opsController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/ops/v1")
	h.Get("cache/stats", c.CacheStats)
	h.Delete("cache", c.ClearCache)
	h.Get("logs", c.Logs)
	h.Get("logs/:id", c.LogByID)
	if c.metrics != nil {
		r.Get("/metrics", adaptor.HTTPHandler(c.metrics))
	}
}

func (c *opsController) CacheStats(ctx *fiber.Ctx) error {
	stats := c.cache.Stats()
	return ctx.JSON(serverutils.SuccessResponse("Success get cache stats", fiber.Map{
		"stats":    stats,
		"hit_rate": stats.HitRate(),
	}))
}

func (c *opsController) ClearCache(ctx *fiber.Ctx) error {
	prefix := ctx.Query("prefix", "")
	removed, err := c.cache.Clear(ctx.Context(), prefix)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Cache cleared", dto.CacheClearResponse{Prefix: prefix, Removed: removed}))
}

func (c *opsController) Logs(ctx *fiber.Ctx) error {
	if c.logs == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "log reader not configured"))
	}
	entries, err := c.logs.GetLogs(ctx.Query("level", ""), ctx.QueryInt("limit", 50), ctx.QueryInt("offset", 0))
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get logs", entries))
}

func (c *opsController) LogByID(ctx *fiber.Ctx) error {
	if c.logs == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "log reader not configured"))
	}
	entry, err := c.logs.GetLogById(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get log", entry))
}
