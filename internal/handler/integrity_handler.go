package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/service"
	"github.com/scriptoria/scriptoria-api/internal/utils"
)

// IntegrityHandler wires the similarity report and verification routes.
type IntegrityHandler struct {
	service service.IntegrityService
	logger  zerolog.Logger
}

// NewIntegrityHandler constructs the handler.
func NewIntegrityHandler(service service.IntegrityService, logger zerolog.Logger) *IntegrityHandler {
	return &IntegrityHandler{
		service: service,
		logger:  logger.With().Str("component", "integrity_handler").Logger(),
	}
}

// Register attaches integrity endpoints to the router group.
func (h *IntegrityHandler) Register(router fiber.Router) {
	router.Get("/:id/integrity", h.report)
	router.Post("/:id/integrity/decision", h.verify)
}

func (h *IntegrityHandler) report(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.Report(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "integrity report retrieved", report)
}

func (h *IntegrityHandler) verify(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.IntegrityDecisionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	report, err := h.service.Verify(c.Context(), id, payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "integrity decision recorded", report)
}

func (h *IntegrityHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrPaperNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "paper not found")
	case errors.Is(err, service.ErrFinalNotApproved):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrScoreMissing):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
