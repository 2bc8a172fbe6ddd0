package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/service"
	"github.com/scriptoria/scriptoria-api/internal/utils"
)

// PaperHandler wires the paper and chapter workflow routes.
type PaperHandler struct {
	service service.PaperService
	logger  zerolog.Logger
}

// NewPaperHandler constructs the handler.
func NewPaperHandler(service service.PaperService, logger zerolog.Logger) *PaperHandler {
	return &PaperHandler{
		service: service,
		logger:  logger.With().Str("component", "paper_handler").Logger(),
	}
}

// Register attaches paper endpoints to the router group. Chapter routes
// address chapters by their position in the paper's chapter list.
func (h *PaperHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Put("/:id/chapters/:index", h.saveDraft)
	router.Post("/:id/chapters/:index/submit", h.submit)
	router.Post("/:id/chapters/:index/withdraw", h.withdraw)
	router.Post("/:id/chapters/:index/decision", h.decide)
	router.Post("/:id/chapters/:index/unapprove", h.unapprove)
}

func (h *PaperHandler) list(c *fiber.Ctx) error {
	var filter dto.PaperFilter
	if status := strings.TrimSpace(c.Query("final_status")); status != "" {
		filter.FinalStatus = &status
	}
	if raw := strings.TrimSpace(c.Query("assignment_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid assignment_id")
		}
		id := uint(parsed)
		filter.AssignmentID = &id
	}
	if raw := strings.TrimSpace(c.Query("student_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid student_id")
		}
		id := uint(parsed)
		filter.StudentID = &id
	}

	papers, err := h.service.List(c.Context(), filter, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "papers retrieved", papers)
}

func (h *PaperHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	paper, err := h.service.Get(c.Context(), id, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "paper retrieved", paper)
}

func (h *PaperHandler) saveDraft(c *fiber.Ctx) error {
	id, index, err := paperChapterParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SaveDraftRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	paper, err := h.service.SaveChapterDraft(c.Context(), id, index, payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "draft saved", paper)
}

func (h *PaperHandler) submit(c *fiber.Ctx) error {
	id, index, err := paperChapterParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	paper, err := h.service.SubmitChapter(c.Context(), id, index, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "chapter submitted", paper)
}

func (h *PaperHandler) withdraw(c *fiber.Ctx) error {
	id, index, err := paperChapterParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	paper, err := h.service.WithdrawChapter(c.Context(), id, index, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission withdrawn", paper)
}

func (h *PaperHandler) decide(c *fiber.Ctx) error {
	id, index, err := paperChapterParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.DecideChapterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	paper, err := h.service.DecideChapter(c.Context(), id, index, payload, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "chapter decision recorded", paper)
}

func (h *PaperHandler) unapprove(c *fiber.Ctx) error {
	id, index, err := paperChapterParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	paper, err := h.service.UnapproveChapter(c.Context(), id, index, activityActorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "approval withdrawn", paper)
}

func (h *PaperHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrPaperNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "paper not found")
	case errors.Is(err, service.ErrChapterIndex):
		return utils.SendError(c, fiber.StatusNotFound, "chapter not found")
	case errors.Is(err, service.ErrNotPaperOwner), errors.Is(err, service.ErrNotPaperAdvisor):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrStudentLocked):
		return utils.SendError(c, fiber.StatusLocked, err.Error())
	case errors.Is(err, service.ErrChapterLocked),
		errors.Is(err, service.ErrChapterImmutable),
		errors.Is(err, service.ErrChapterSubmitted),
		errors.Is(err, service.ErrNotSubmitted),
		errors.Is(err, service.ErrNotApproved),
		errors.Is(err, service.ErrFinalLocksChapter):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAdvisorRequired), errors.Is(err, service.ErrFeedbackRequired):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case strings.Contains(err.Error(), "minimum word count"), strings.Contains(err.Error(), "already submitted"):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func paperChapterParams(c *fiber.Ctx) (uint, int, error) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return 0, 0, err
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 0 {
		return 0, 0, errors.New("invalid chapter index")
	}
	return id, index, nil
}
