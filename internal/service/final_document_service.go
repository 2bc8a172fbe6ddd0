package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/repository"
	"github.com/scriptoria/scriptoria-api/internal/workflow"
)

// Sentinel errors for the final-document stage.
var (
	ErrFinalGateClosed    = errors.New("final submission is locked until every chapter is approved")
	ErrFinalNotUploaded   = errors.New("no final document awaiting a decision")
	ErrFinalAlreadySigned = errors.New("final document already approved")
)

// TextExtractor pulls plain text out of an uploaded document. Extraction is
// an external collaborator; pkg/extract ships the plain-text fallback.
type TextExtractor interface {
	Extract(name string, reader io.Reader) (string, error)
}

// FinalDocumentService manages the paper-level upload stage that follows the
// per-chapter approval gate.
type FinalDocumentService interface {
	Upload(ctx context.Context, paperID uint, file *multipart.FileHeader, actor ActivityActor) (dto.PaperResponse, error)
	Decide(ctx context.Context, paperID uint, payload dto.FinalDecisionRequest, actor ActivityActor) (dto.PaperResponse, error)
	Delete(ctx context.Context, paperID uint, actor ActivityActor) (dto.PaperResponse, error)
}

type finalDocumentService struct {
	papers    repository.PaperRepository
	users     repository.UserRepository
	paperView PaperService
	uploader  FileUploader
	extractor TextExtractor
	scorer    IntegrityScorer
	validator *validator.Validate
	activity  ActivityRecorder
	events    EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewFinalDocumentService constructs a FinalDocumentService instance.
func NewFinalDocumentService(
	papers repository.PaperRepository,
	users repository.UserRepository,
	paperView PaperService,
	uploader FileUploader,
	extractor TextExtractor,
	scorer IntegrityScorer,
	validate *validator.Validate,
	activity ActivityRecorder,
	events EventPublisher,
	logger zerolog.Logger,
) FinalDocumentService {
	if events == nil {
		events = NopEventPublisher{}
	}
	return &finalDocumentService{
		papers:    papers,
		users:     users,
		paperView: paperView,
		uploader:  uploader,
		extractor: extractor,
		scorer:    scorer,
		validator: validate,
		activity:  activity,
		events:    events,
		logger:    logger.With().Str("component", "final_document_service").Logger(),
		now:       time.Now,
	}
}

func (s *finalDocumentService) Upload(ctx context.Context, paperID uint, file *multipart.FileHeader, actor ActivityActor) (dto.PaperResponse, error) {
	if file == nil {
		return dto.PaperResponse{}, fmt.Errorf("final document file is required")
	}

	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	if actor.Role == models.RoleStudent && paper.StudentID != actor.ID {
		return dto.PaperResponse{}, ErrNotPaperOwner
	}

	if paper.FinalApproved() {
		return dto.PaperResponse{}, ErrFinalAlreadySigned
	}

	// The aggregate gate is a pure function of the chapter records; it is
	// recomputed here, never read from a stored flag.
	if !workflow.FinalSubmissionUnlocked(paper.ChapterList()) {
		return dto.PaperResponse{}, ErrFinalGateClosed
	}

	if err := validateFinalDocumentType(file); err != nil {
		return dto.PaperResponse{}, err
	}

	reader, err := file.Open()
	if err != nil {
		return dto.PaperResponse{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	url, err := s.uploader.Upload(ctx, file.Filename, reader)
	if err != nil {
		return dto.PaperResponse{}, fmt.Errorf("failed to upload final document: %w", err)
	}

	text := ""
	if s.extractor != nil {
		extractReader, err := file.Open()
		if err == nil {
			defer extractReader.Close()
			if extracted, err := s.extractor.Extract(file.Filename, extractReader); err == nil {
				text = extracted
			} else {
				s.logger.Warn().Err(err).Str("file", file.Filename).Msg("failed to extract final document text")
			}
		}
	}

	uploadedAt := s.now()
	paper.FinalDocumentURL = url
	paper.FinalDocumentName = file.Filename
	paper.FinalDocumentSize = file.Size
	paper.FinalDocumentText = text
	paper.FinalUploadedAt = &uploadedAt
	paper.FinalStatus = models.FinalStatusUploaded
	paper.FinalFeedback = ""
	// A new upload invalidates any prior similarity score and resets the
	// verification state.
	paper.SimilarityScore = nil
	paper.IntegrityStatus = models.IntegrityPending

	if err := s.papers.Update(ctx, &paper); err != nil {
		return dto.PaperResponse{}, err
	}

	s.events.Publish(ctx, WorkflowEvent{
		Name:      EventFinalUploaded,
		PaperID:   paper.ID,
		StudentID: paper.StudentID,
	})

	return s.paperView.Get(ctx, paper.ID, actor)
}

func (s *finalDocumentService) Decide(ctx context.Context, paperID uint, payload dto.FinalDecisionRequest, actor ActivityActor) (dto.PaperResponse, error) {
	tracer := otel.Tracer("github.com/scriptoria/scriptoria-api/internal/service/final_document")
	ctx, span := tracer.Start(ctx, "final_document.decide")
	span.SetAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.String("paper.decision", payload.Decision),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.PaperResponse{}, err
	}

	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	if err := s.checkAdvisor(ctx, paper, actor); err != nil {
		return dto.PaperResponse{}, err
	}

	if paper.FinalApproved() {
		return dto.PaperResponse{}, ErrFinalAlreadySigned
	}
	if paper.FinalStatus != models.FinalStatusUploaded {
		return dto.PaperResponse{}, ErrFinalNotUploaded
	}

	switch payload.Decision {
	case string(models.ChapterApproved):
		paper.FinalStatus = models.FinalStatusApproved
		paper.FinalFeedback = payload.Feedback

		// Final approval triggers integrity verification: the score is
		// computed now, the VERIFIED/REJECTED ruling stays human.
		if s.scorer != nil {
			score, err := s.scorer.ComputeScore(paper)
			if err != nil {
				s.logger.Error().Err(err).Uint("paper_id", paper.ID).Msg("failed to compute similarity score")
			} else {
				paper.SimilarityScore = &score
			}
		}
	case string(models.ChapterRevision):
		if payload.Feedback == "" {
			return dto.PaperResponse{}, ErrFeedbackRequired
		}
		paper.FinalStatus = models.FinalStatusRevision
		paper.FinalFeedback = payload.Feedback
	default:
		return dto.PaperResponse{}, fmt.Errorf("unknown decision %q", payload.Decision)
	}

	if err := s.papers.Update(ctx, &paper); err != nil {
		return dto.PaperResponse{}, err
	}

	s.recordActivity(ctx, actor, "final_document_decided", paper.ID, map[string]interface{}{"decision": payload.Decision})
	s.events.Publish(ctx, WorkflowEvent{
		Name:      EventFinalDecided,
		PaperID:   paper.ID,
		StudentID: paper.StudentID,
		Detail:    map[string]interface{}{"decision": payload.Decision},
	})

	return s.paperView.Get(ctx, paper.ID, actor)
}

func (s *finalDocumentService) Delete(ctx context.Context, paperID uint, actor ActivityActor) (dto.PaperResponse, error) {
	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	if actor.Role == models.RoleStudent && paper.StudentID != actor.ID {
		return dto.PaperResponse{}, ErrNotPaperOwner
	}

	if paper.FinalApproved() {
		return dto.PaperResponse{}, ErrFinalAlreadySigned
	}
	if !paper.HasFinalDocument() {
		return dto.PaperResponse{}, ErrFinalNotUploaded
	}

	paper.FinalDocumentURL = ""
	paper.FinalDocumentName = ""
	paper.FinalDocumentSize = 0
	paper.FinalDocumentText = ""
	paper.FinalUploadedAt = nil
	paper.FinalStatus = models.FinalStatusNone
	paper.SimilarityScore = nil
	paper.IntegrityStatus = models.IntegrityPending

	if err := s.papers.Update(ctx, &paper); err != nil {
		return dto.PaperResponse{}, err
	}

	return s.paperView.Get(ctx, paper.ID, actor)
}

func (s *finalDocumentService) loadPaper(ctx context.Context, id uint) (models.Paper, error) {
	paper, err := s.papers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Paper{}, ErrPaperNotFound
		}
		return models.Paper{}, err
	}
	return paper, nil
}

// checkAdvisor restricts final-document rulings to the supervising advisor
// or an admin.
func (s *finalDocumentService) checkAdvisor(ctx context.Context, paper models.Paper, actor ActivityActor) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleAdvisor:
		student, err := s.users.GetByID(ctx, paper.StudentID)
		if err != nil {
			return err
		}
		if student.AdvisorID == nil || *student.AdvisorID != actor.ID {
			return ErrNotPaperAdvisor
		}
		return nil
	default:
		return ErrNotPaperAdvisor
	}
}

func (s *finalDocumentService) recordActivity(ctx context.Context, actor ActivityActor, action string, paperID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	entry := ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "paper",
		EntityID:   &paperID,
		Metadata:   metadata,
	}
	if _, err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}

func validateFinalDocumentType(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}

	allowed := []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/zip",
		"text/plain",
	}
	for _, a := range allowed {
		if mime.Is(a) {
			return nil
		}
	}

	return fmt.Errorf("unsupported file type: %s", mime.String())
}
