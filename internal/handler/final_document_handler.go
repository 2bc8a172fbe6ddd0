package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/service"
	"github.com/scriptoria/scriptoria-api/internal/utils"
)

// FinalDocumentHandler wires the final manuscript routes.
type FinalDocumentHandler struct {
	service service.FinalDocumentService
	logger  zerolog.Logger
}

// NewFinalDocumentHandler constructs the handler.
func NewFinalDocumentHandler(service service.FinalDocumentService, logger zerolog.Logger) *FinalDocumentHandler {
	return &FinalDocumentHandler{
		service: service,
		logger:  logger.With().Str("component", "final_document_handler").Logger(),
	}
}

// Register attaches final document endpoints to the router group.
func (h *FinalDocumentHandler) Register(router fiber.Router) {
	router.Post("/:id/final-document", h.upload)
	router.Post("/:id/final-document/decision", h.decide)
	router.Delete("/:id/final-document", h.remove)
}

func (h *FinalDocumentHandler) upload(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "final document file is required")
	}

	paper, err := h.service.Upload(c.Context(), id, file, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "final document uploaded", paper)
}

func (h *FinalDocumentHandler) decide(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.FinalDecisionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	paper, err := h.service.Decide(c.Context(), id, payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "final decision recorded", paper)
}

func (h *FinalDocumentHandler) remove(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	paper, err := h.service.Delete(c.Context(), id, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "final document removed", paper)
}

func (h *FinalDocumentHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrPaperNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "paper not found")
	case errors.Is(err, service.ErrNotPaperOwner), errors.Is(err, service.ErrNotPaperAdvisor):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrFinalGateClosed),
		errors.Is(err, service.ErrFinalNotUploaded),
		errors.Is(err, service.ErrFinalAlreadySigned):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrFeedbackRequired):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case strings.Contains(err.Error(), "unsupported file type"):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
