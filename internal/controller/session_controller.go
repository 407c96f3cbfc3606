package controller

import (
	"errors"

	"travel-intel/internal/dto"
	"travel-intel/internal/pkg/serverutils"
	"travel-intel/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Write(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
}

func NewSessionController(service service.ISessionService) ISessionController {
	return &sessionController{service: service}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Post("", c.Write)
	h.Get(":destination", c.List)
}

func (c *sessionController) Write(ctx *fiber.Ctx) error {
	var req dto.WriteSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "invalid session body"))
	}

	res, err := c.service.Write(ctx.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSession) {
			return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
		}
		return fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session written", res))
}

func (c *sessionController) List(ctx *fiber.Ctx) error {
	dest, err := destinationParam(ctx)
	if err != nil {
		return fail(ctx, err)
	}
	res, err := c.service.List(ctx.Context(), dest)
	if err != nil {
		return fail(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get sessions", res))
}
