package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/repository"
)

// Sentinel errors for integrity verification.
var (
	ErrFinalNotApproved = errors.New("final document is not approved yet")
	ErrScoreMissing     = errors.New("similarity score has not been computed")
)

// IntegrityScorer computes the similarity score between a paper's editor
// content and its uploaded final document. The score is deterministic for a
// given (editor content, document text) pair.
type IntegrityScorer interface {
	ComputeScore(paper models.Paper) (float64, error)
}

// IntegrityService exposes the verification workflow: reading the similarity
// report and recording the institutional verifier's ruling. The engine never
// auto-rejects; a low score only flags the paper for human attention.
type IntegrityService interface {
	IntegrityScorer
	Report(ctx context.Context, paperID uint) (dto.IntegrityReportResponse, error)
	Verify(ctx context.Context, paperID uint, payload dto.IntegrityDecisionRequest, actor ActivityActor) (dto.IntegrityReportResponse, error)
}

type integrityService struct {
	papers       repository.PaperRepository
	validator    *validator.Validate
	activity     ActivityRecorder
	events       EventPublisher
	textOnly     *bluemonday.Policy
	minimumScore float64
	logger       zerolog.Logger
	now          func() time.Time
}

// NewIntegrityService constructs an IntegrityService. tolerance is the
// acceptable distance from a perfect score; the minimum acceptable score is
// 100 - tolerance.
func NewIntegrityService(
	papers repository.PaperRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	events EventPublisher,
	tolerance float64,
	logger zerolog.Logger,
) IntegrityService {
	if events == nil {
		events = NopEventPublisher{}
	}
	if tolerance < 0 {
		tolerance = 0
	}
	if tolerance > 100 {
		tolerance = 100
	}
	return &integrityService{
		papers:       papers,
		validator:    validate,
		activity:     activity,
		events:       events,
		textOnly:     bluemonday.StrictPolicy(),
		minimumScore: 100 - tolerance,
		logger:       logger.With().Str("component", "integrity_service").Logger(),
		now:          time.Now,
	}
}

// ComputeScore measures token-bigram overlap (Dice coefficient) between the
// concatenated chapter contents and the extracted document text, scaled to
// [0, 100]. Two empty inputs count as a perfect match; one empty side scores
// zero.
func (s *integrityService) ComputeScore(paper models.Paper) (float64, error) {
	var builder strings.Builder
	for _, chapter := range paper.ChapterList() {
		builder.WriteString(chapter.Content)
		builder.WriteString("\n")
	}

	editor := tokenBigrams(s.textOnly.Sanitize(builder.String()))
	document := tokenBigrams(paper.FinalDocumentText)

	if len(editor) == 0 && len(document) == 0 {
		return 100, nil
	}
	if len(editor) == 0 || len(document) == 0 {
		return 0, nil
	}

	intersection := 0
	for bigram, count := range editor {
		if other, ok := document[bigram]; ok {
			if other < count {
				count = other
			}
			intersection += count
		}
	}

	editorTotal := 0
	for _, count := range editor {
		editorTotal += count
	}
	documentTotal := 0
	for _, count := range document {
		documentTotal += count
	}

	dice := 2 * float64(intersection) / float64(editorTotal+documentTotal)
	return dice * 100, nil
}

func (s *integrityService) Report(ctx context.Context, paperID uint) (dto.IntegrityReportResponse, error) {
	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return dto.IntegrityReportResponse{}, err
	}

	return s.report(paper), nil
}

func (s *integrityService) Verify(ctx context.Context, paperID uint, payload dto.IntegrityDecisionRequest, actor ActivityActor) (dto.IntegrityReportResponse, error) {
	tracer := otel.Tracer("github.com/scriptoria/scriptoria-api/internal/service/integrity")
	ctx, span := tracer.Start(ctx, "integrity.verify")
	span.SetAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.String("paper.decision", payload.Decision),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.IntegrityReportResponse{}, err
	}

	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return dto.IntegrityReportResponse{}, err
	}

	if !paper.FinalApproved() {
		return dto.IntegrityReportResponse{}, ErrFinalNotApproved
	}

	// The ruling consumes the computed score; compute it late if the
	// approval-time computation failed.
	if paper.SimilarityScore == nil {
		score, err := s.ComputeScore(paper)
		if err != nil {
			return dto.IntegrityReportResponse{}, ErrScoreMissing
		}
		paper.SimilarityScore = &score
	}

	paper.IntegrityStatus = payload.Decision

	if err := s.papers.Update(ctx, &paper); err != nil {
		return dto.IntegrityReportResponse{}, err
	}

	s.recordActivity(ctx, actor, "integrity_decided", paper.ID, map[string]interface{}{
		"decision": payload.Decision,
		"score":    *paper.SimilarityScore,
	})
	s.events.Publish(ctx, WorkflowEvent{
		Name:      EventPaperVerified,
		PaperID:   paper.ID,
		StudentID: paper.StudentID,
		Detail:    map[string]interface{}{"decision": payload.Decision},
	})

	return s.report(paper), nil
}

func (s *integrityService) report(paper models.Paper) dto.IntegrityReportResponse {
	flagged := paper.SimilarityScore != nil && *paper.SimilarityScore < s.minimumScore
	return dto.IntegrityReportResponse{
		PaperID:         paper.ID,
		SimilarityScore: paper.SimilarityScore,
		MinimumScore:    s.minimumScore,
		Flagged:         flagged,
		IntegrityStatus: paper.IntegrityStatus,
	}
}

func (s *integrityService) loadPaper(ctx context.Context, id uint) (models.Paper, error) {
	paper, err := s.papers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Paper{}, ErrPaperNotFound
		}
		return models.Paper{}, err
	}
	return paper, nil
}

func (s *integrityService) recordActivity(ctx context.Context, actor ActivityActor, action string, paperID uint, metadata map[string]interface{}) {
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

func tokenBigrams(text string) map[string]int {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) == 1 {
		return map[string]int{tokens[0]: 1}
	}

	bigrams := make(map[string]int, len(tokens)-1)
	for i := 0; i+1 < len(tokens); i++ {
		bigrams[tokens[i]+" "+tokens[i+1]]++
	}
	return bigrams
}
