package controller

import (
	"errors"
	"net/url"
	"strconv"

	"travel-intel/internal/dto"
	"travel-intel/internal/pkg/serverutils"
	"travel-intel/internal/repository/contract"
	"travel-intel/internal/service"
	"travel-intel/pkg/lock"
	"travel-intel/pkg/storage"

	"github.com/gofiber/fiber/v2"
)

type IDatasetController interface {
	RegisterRoutes(r fiber.Router)
	Destinations(ctx *fiber.Ctx) error
	Latest(ctx *fiber.Ctx) error
	Manifests(ctx *fiber.Ctx) error
	Version(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
	ShouldRegenerate(ctx *fiber.Ctx) error
	Consolidate(ctx *fiber.Ctx) error
}

type datasetController struct {
	consolidation service.IConsolidationService
	export        service.IExportService
}

func NewDatasetController(consolidation service.IConsolidationService, export service.IExportService) IDatasetController {
	return &datasetController{consolidation: consolidation, export: export}
}

func (c *datasetController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/dataset/v1")
	h.Get("", c.Destinations)
	h.Get(":destination/latest", c.Latest)
	h.Get(":destination/manifests", c.Manifests)
	h.Get(":destination/versions/:version", c.Version)
	h.Get(":destination/history", c.History)
	h.Get(":destination/stats", c.Stats)
	h.Get(":destination/regenerate", c.ShouldRegenerate)
	h.Post(":destination/consolidate", c.Consolidate)
}

// destinationParam decodes the path segment; destination ids carry spaces and commas.
func destinationParam(ctx *fiber.Ctx) (string, error) {
	raw := ctx.Params("destination")
	dest, err := url.PathUnescape(raw)
	if err != nil || dest == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid destination")
	}
	return dest, nil
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, service.ErrDatasetNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, lock.ErrLockContention), errors.Is(err, contract.ErrSessionExists):
		return fiber.StatusConflict
	case errors.Is(err, storage.ErrStorage):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func fail(ctx *fiber.Ctx, err error) error {
	code := statusFor(err)
	return ctx.Status(code).JSON(serverutils.ErrorResponse(code, err.Error()))
}

func (c *datasetController) Destinations(ctx *fiber.Ctx) error {
	res, err := c.export.Destinations(ctx.Context())
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get destinations", dto.DestinationListResponse{Destinations: res}))
}

func (c *datasetController) Latest(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	res, err := c.export.Latest(ctx.Context(), dest)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get latest dataset", res))
}

func (c *datasetController) Manifests(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	res, err := c.export.Manifests(ctx.Context(), dest)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get manifests", res))
}

func (c *datasetController) Version(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	version, err := strconv.ParseInt(ctx.Params("version"), 10, 64)
	if err != nil || version <= 0 {
		return fail(ctx, fiber.NewError(fiber.StatusBadRequest, "version must be a positive integer"))
	}
	res, err := c.export.Version(ctx.Context(), dest, version)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get dataset version", res))
}

func (c *datasetController) History(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	limit := ctx.QueryInt("limit", 10)
	res, err := c.consolidation.History(ctx.Context(), dest, limit)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get history", res))
}

func (c *datasetController) Stats(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	res, err := c.consolidation.Stats(ctx.Context(), dest)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get stats", res))
}

func (c *datasetController) ShouldRegenerate(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	res, err := c.consolidation.ShouldRegenerate(ctx.Context(), dest)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get regeneration advice", res))
}

func (c *datasetController) Consolidate(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	res, err := c.consolidation.Consolidate(ctx.Context(), dest)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Consolidation "+res.Outcome, res))
}
