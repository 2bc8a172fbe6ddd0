package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/repository"
)

// ErrNotGradable is returned when a grade is attempted before the final
// document has been approved.
var ErrNotGradable = errors.New("paper final document is not approved")

// GradingService records examiner grades on papers whose final document has
// been approved. Grading is terminal for the workflow but not write-once, a
// later grade replaces the earlier one.
type GradingService interface {
	Grade(ctx context.Context, paperID uint, payload dto.GradeRequest, actor ActivityActor) (dto.PaperResponse, error)
}

type gradingService struct {
	papers       repository.PaperRepository
	validator    *validator.Validate
	activity     ActivityRecorder
	events       EventPublisher
	minimumScore float64
	logger       zerolog.Logger
	now          func() time.Time
}

// NewGradingService constructs a GradingService instance. minimumScore is
// the same integrity acceptance threshold surfaced on paper reads.
func NewGradingService(
	papers repository.PaperRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	events EventPublisher,
	minimumScore float64,
	logger zerolog.Logger,
) GradingService {
	if events == nil {
		events = NopEventPublisher{}
	}
	return &gradingService{
		papers:       papers,
		validator:    validate,
		activity:     activity,
		events:       events,
		minimumScore: minimumScore,
		logger:       logger.With().Str("component", "grading_service").Logger(),
		now:          time.Now,
	}
}

func (s *gradingService) Grade(ctx context.Context, paperID uint, payload dto.GradeRequest, actor ActivityActor) (dto.PaperResponse, error) {
	tracer := otel.Tracer("github.com/scriptoria/scriptoria-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.grade")
	span.SetAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.Float64("paper.grade", payload.Score),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.PaperResponse{}, err
	}

	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PaperResponse{}, ErrPaperNotFound
		}
		return dto.PaperResponse{}, err
	}

	if !paper.FinalApproved() {
		return dto.PaperResponse{}, ErrNotGradable
	}

	grade := payload.Score
	paper.Grade = &grade
	paper.GradeFeedback = payload.Feedback

	if err := s.papers.Update(ctx, &paper); err != nil {
		return dto.PaperResponse{}, err
	}

	s.logger.Info().
		Uint("paper_id", paper.ID).
		Float64("grade", grade).
		Msg("paper graded")

	if s.activity != nil {
		id := paper.ID
		entry := ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "paper_graded",
			EntityType: "paper",
			EntityID:   &id,
			Metadata:   map[string]interface{}{"grade": grade},
		}
		if _, err := s.activity.Record(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record grading activity")
		}
	}

	s.events.Publish(ctx, WorkflowEvent{
		Name:      EventPaperGraded,
		PaperID:   paper.ID,
		StudentID: paper.StudentID,
		Detail:    map[string]interface{}{"grade": grade},
	})

	return dto.NewPaperResponse(paper, s.chapterResponses(paper), s.minimumScore), nil
}

// chapterResponses surfaces the stored chapter list untouched. Grading
// happens after the final decision, when every chapter is already APPROVED,
// so no window resolution is needed.
func (s *gradingService) chapterResponses(paper models.Paper) []dto.ChapterResponse {
	chapters := paper.ChapterList()
	responses := make([]dto.ChapterResponse, 0, len(chapters))
	for i, chapter := range chapters {
		responses = append(responses, dto.ChapterResponse{
			Index:     i,
			Title:     chapter.Title,
			Key:       chapter.Key,
			MinWords:  chapter.MinWords,
			Content:   chapter.Content,
			WordCount: chapter.WordCount,
			Status:    chapter.Status,
			Feedback:  chapter.Feedback,
			History:   chapter.History,
		})
	}
	return responses
}
