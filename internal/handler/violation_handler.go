package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/service"
	"github.com/scriptoria/scriptoria-api/internal/utils"
)

// ViolationHandler wires the integrity ledger routes.
type ViolationHandler struct {
	service service.ViolationService
	logger  zerolog.Logger
}

// NewViolationHandler constructs the handler.
func NewViolationHandler(service service.ViolationService, logger zerolog.Logger) *ViolationHandler {
	return &ViolationHandler{
		service: service,
		logger:  logger.With().Str("component", "violation_handler").Logger(),
	}
}

// Register attaches violation endpoints to the router group. The group is
// mixed-role: the detection client runs in the student's own session, so
// students may record and read violations scoped to themselves, while the
// reset stays admin-only.
func (h *ViolationHandler) Register(router fiber.Router) {
	router.Post("", h.record)
	router.Get("/students/:id", h.list)
	router.Get("/students/:id/status", h.status)
	router.Post("/students/:id/reset", h.reset)
}

func (h *ViolationHandler) record(c *fiber.Ctx) error {
	var payload dto.ViolationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if userRoleFromContext(c) == models.RoleStudent && payload.StudentID != userIDFromContext(c) {
		return utils.SendError(c, fiber.StatusForbidden, "students may only record their own violations")
	}

	violation, err := h.service.Record(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "violation recorded", violation)
}

func (h *ViolationHandler) list(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if userRoleFromContext(c) == models.RoleStudent && id != userIDFromContext(c) {
		return utils.SendError(c, fiber.StatusForbidden, "students may only view their own violations")
	}

	includeResolved := c.QueryBool("include_resolved", false)
	violations, err := h.service.ListByStudent(c.Context(), id, includeResolved)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "violations retrieved", violations)
}

func (h *ViolationHandler) status(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if userRoleFromContext(c) == models.RoleStudent && id != userIDFromContext(c) {
		return utils.SendError(c, fiber.StatusForbidden, "students may only view their own violations")
	}

	status, err := h.service.Status(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "violation status retrieved", status)
}

func (h *ViolationHandler) reset(c *fiber.Ctx) error {
	if userRoleFromContext(c) != models.RoleAdmin {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status, err := h.service.Reset(c.Context(), id, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "violations reset", status)
}

func (h *ViolationHandler) handleError(c *fiber.Ctx, err error) error {
	if isValidationError(err) {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
