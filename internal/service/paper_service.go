package service

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/scriptoria/scriptoria-api/internal/workflow"
)

// Sentinel errors surfaced by the paper workflow.
var (
	ErrPaperNotFound     = errors.New("paper not found")
	ErrChapterIndex      = errors.New("chapter index out of range")
	ErrChapterLocked     = errors.New("chapter is locked")
	ErrChapterImmutable  = errors.New("approved chapter content is immutable")
	ErrChapterSubmitted  = errors.New("withdraw the submission before editing")
	ErrNotSubmitted      = errors.New("chapter is not awaiting a decision")
	ErrNotApproved       = errors.New("chapter is not approved")
	ErrAdvisorRequired   = errors.New("student has no assigned advisor")
	ErrFeedbackRequired  = errors.New("revision feedback must not be empty")
	ErrNotPaperOwner     = errors.New("paper belongs to another student")
	ErrNotPaperAdvisor   = errors.New("paper is supervised by another advisor")
	ErrStudentLocked     = errors.New("editing is locked due to unresolved integrity violations")
	ErrFinalLocksChapter = errors.New("final document already approved")
)

// ViolationLocker is the lock predicate the editing surface consults before
// accepting student writes.
type ViolationLocker interface {
	IsLocked(ctx context.Context, studentID uint) (bool, error)
}

// PaperService drives the per-chapter approval state machine. Every read
// passes through the gate resolver; raw stored statuses are never returned
// for time-gated chapters.
type PaperService interface {
	Get(ctx context.Context, id uint, actor ActivityActor) (dto.PaperResponse, error)
	List(ctx context.Context, filter dto.PaperFilter, actor ActivityActor) ([]dto.PaperResponse, error)
	SaveChapterDraft(ctx context.Context, paperID uint, chapterIndex int, payload dto.SaveDraftRequest, actor ActivityActor) (dto.PaperResponse, error)
	SubmitChapter(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (dto.PaperResponse, error)
	WithdrawChapter(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (dto.PaperResponse, error)
	DecideChapter(ctx context.Context, paperID uint, chapterIndex int, payload dto.DecideChapterRequest, actor ActivityActor) (dto.PaperResponse, error)
	UnapproveChapter(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (dto.PaperResponse, error)
}

type paperService struct {
	papers       repository.PaperRepository
	users        repository.UserRepository
	validator    *validator.Validate
	locker       ViolationLocker
	activity     ActivityRecorder
	events       EventPublisher
	sanitizer    *bluemonday.Policy
	textOnly     *bluemonday.Policy
	minimumScore float64
	logger       zerolog.Logger
	now          func() time.Time
}

// NewPaperService constructs a PaperService instance. minimumScore is the
// integrity acceptance threshold surfaced on paper reads.
func NewPaperService(
	papers repository.PaperRepository,
	users repository.UserRepository,
	validate *validator.Validate,
	locker ViolationLocker,
	activity ActivityRecorder,
	events EventPublisher,
	minimumScore float64,
	logger zerolog.Logger,
) PaperService {
	if events == nil {
		events = NopEventPublisher{}
	}
	return &paperService{
		papers:       papers,
		users:        users,
		validator:    validate,
		locker:       locker,
		activity:     activity,
		events:       events,
		sanitizer:    bluemonday.UGCPolicy(),
		textOnly:     bluemonday.StrictPolicy(),
		minimumScore: minimumScore,
		logger:       logger.With().Str("component", "paper_service").Logger(),
		now:          time.Now,
	}
}

func (s *paperService) Get(ctx context.Context, id uint, actor ActivityActor) (dto.PaperResponse, error) {
	paper, err := s.loadPaper(ctx, id)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	if actor.Role == models.RoleStudent && paper.StudentID != actor.ID {
		return dto.PaperResponse{}, ErrNotPaperOwner
	}

	return s.respond(paper, actor), nil
}

func (s *paperService) List(ctx context.Context, filter dto.PaperFilter, actor ActivityActor) ([]dto.PaperResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	repoFilter := repository.PaperFilter{
		AssignmentID: filter.AssignmentID,
		FinalStatus:  filter.FinalStatus,
	}

	// Role scoping: students only ever see their own papers and advisors
	// their supervisees', regardless of requested filters.
	switch actor.Role {
	case models.RoleStudent:
		id := actor.ID
		repoFilter.StudentID = &id
	case models.RoleAdvisor:
		id := actor.ID
		repoFilter.AdvisorID = &id
	default:
		repoFilter.StudentID = filter.StudentID
	}

	papers, err := s.papers.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.PaperResponse, 0, len(papers))
	for _, paper := range papers {
		responses = append(responses, s.respond(paper, actor))
	}

	return responses, nil
}

func (s *paperService) SaveChapterDraft(ctx context.Context, paperID uint, chapterIndex int, payload dto.SaveDraftRequest, actor ActivityActor) (dto.PaperResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PaperResponse{}, err
	}

	paper, chapters, err := s.loadOwnedChapters(ctx, paperID, chapterIndex, actor)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	if err := s.checkStudentLock(ctx, paper.StudentID); err != nil {
		return dto.PaperResponse{}, err
	}

	chapter := chapters[chapterIndex]
	switch chapter.Status {
	case models.ChapterApproved:
		return dto.PaperResponse{}, ErrChapterImmutable
	case models.ChapterSubmitted:
		return dto.PaperResponse{}, ErrChapterSubmitted
	}

	// Status is re-derived from current schedule state at write time; a
	// client-supplied stale status is never trusted.
	if s.resolveEffective(paper, chapter, actor) == models.ChapterLocked {
		return dto.PaperResponse{}, ErrChapterLocked
	}

	content := s.sanitizer.Sanitize(payload.Content)
	chapter.Content = content
	chapter.WordCount = workflow.CountWords(s.textOnly.Sanitize(content))
	chapter.Status = models.ChapterDraft
	chapters[chapterIndex] = chapter

	if err := s.persistChapters(ctx, &paper, chapters); err != nil {
		return dto.PaperResponse{}, err
	}

	return s.respond(paper, actor), nil
}

func (s *paperService) SubmitChapter(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (dto.PaperResponse, error) {
	tracer := otel.Tracer("github.com/scriptoria/scriptoria-api/internal/service/paper")
	ctx, span := tracer.Start(ctx, "chapter.submit")
	span.SetAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.Int("paper.chapter", chapterIndex),
	)
	defer span.End()

	paper, chapters, err := s.loadOwnedChapters(ctx, paperID, chapterIndex, actor)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	if err := s.checkStudentLock(ctx, paper.StudentID); err != nil {
		return dto.PaperResponse{}, err
	}

	chapter := chapters[chapterIndex]
	switch chapter.Status {
	case models.ChapterApproved:
		return dto.PaperResponse{}, ErrChapterImmutable
	case models.ChapterSubmitted:
		return dto.PaperResponse{}, fmt.Errorf("chapter is already submitted")
	}

	if s.resolveEffective(paper, chapter, actor) == models.ChapterLocked {
		return dto.PaperResponse{}, ErrChapterLocked
	}

	// Absence of an advisor is a hard validation failure, never a silent
	// no-op: nobody would ever see the submission.
	student, err := s.users.GetByID(ctx, paper.StudentID)
	if err != nil {
		return dto.PaperResponse{}, err
	}
	if !student.HasAdvisor() {
		return dto.PaperResponse{}, ErrAdvisorRequired
	}

	if chapter.WordCount < chapter.MinWords {
		return dto.PaperResponse{}, fmt.Errorf("minimum word count not met: need %d, have %d", chapter.MinWords, chapter.WordCount)
	}

	chapter.Status = models.ChapterSubmitted
	chapters[chapterIndex] = chapter

	if err := s.persistChapters(ctx, &paper, chapters); err != nil {
		return dto.PaperResponse{}, err
	}

	s.events.Publish(ctx, WorkflowEvent{
		Name:      EventChapterSubmitted,
		PaperID:   paper.ID,
		StudentID: paper.StudentID,
		Detail:    map[string]interface{}{"chapter": chapterIndex, "title": chapter.Title},
	})

	return s.respond(paper, actor), nil
}

func (s *paperService) WithdrawChapter(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (dto.PaperResponse, error) {
	paper, chapters, err := s.loadOwnedChapters(ctx, paperID, chapterIndex, actor)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	chapter := chapters[chapterIndex]
	if chapter.Status != models.ChapterSubmitted {
		return dto.PaperResponse{}, ErrNotSubmitted
	}

	chapter.Status = models.ChapterDraft
	chapters[chapterIndex] = chapter

	if err := s.persistChapters(ctx, &paper, chapters); err != nil {
		return dto.PaperResponse{}, err
	}

	return s.respond(paper, actor), nil
}

func (s *paperService) DecideChapter(ctx context.Context, paperID uint, chapterIndex int, payload dto.DecideChapterRequest, actor ActivityActor) (dto.PaperResponse, error) {
	tracer := otel.Tracer("github.com/scriptoria/scriptoria-api/internal/service/paper")
	ctx, span := tracer.Start(ctx, "chapter.decide")
	span.SetAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.Int("paper.chapter", chapterIndex),
		attribute.String("paper.decision", payload.Decision),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.PaperResponse{}, err
	}

	paper, chapters, err := s.loadAdvisedChapters(ctx, paperID, chapterIndex, actor)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	chapter := chapters[chapterIndex]
	if chapter.Status != models.ChapterSubmitted {
		return dto.PaperResponse{}, ErrNotSubmitted
	}

	decision := models.ChapterStatus(payload.Decision)
	if decision == models.ChapterRevision && payload.Feedback == "" {
		return dto.PaperResponse{}, ErrFeedbackRequired
	}

	chapter.Status = decision
	chapter.Feedback = payload.Feedback
	chapter.History = append(chapter.History, models.FeedbackEntry{
		Status:    decision,
		Feedback:  payload.Feedback,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		At:        s.now(),
	})
	chapters[chapterIndex] = chapter

	if err := s.persistChapters(ctx, &paper, chapters); err != nil {
		return dto.PaperResponse{}, err
	}

	s.recordActivity(ctx, actor, "chapter_decided", paper.ID, map[string]interface{}{
		"chapter":  chapterIndex,
		"decision": payload.Decision,
	})
	s.events.Publish(ctx, WorkflowEvent{
		Name:      EventChapterDecided,
		PaperID:   paper.ID,
		StudentID: paper.StudentID,
		Detail:    map[string]interface{}{"chapter": chapterIndex, "decision": payload.Decision},
	})

	return s.respond(paper, actor), nil
}

// UnapproveChapter is the explicit advisor reversal of a mistaken approval.
// Without it an approval would permanently lock the chapter content.
func (s *paperService) UnapproveChapter(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (dto.PaperResponse, error) {
	paper, chapters, err := s.loadAdvisedChapters(ctx, paperID, chapterIndex, actor)
	if err != nil {
		return dto.PaperResponse{}, err
	}

	if paper.FinalApproved() {
		return dto.PaperResponse{}, ErrFinalLocksChapter
	}

	chapter := chapters[chapterIndex]
	if chapter.Status != models.ChapterApproved {
		return dto.PaperResponse{}, ErrNotApproved
	}

	chapter.Status = models.ChapterSubmitted
	chapter.History = append(chapter.History, models.FeedbackEntry{
		Status:    models.ChapterSubmitted,
		Feedback:  "approval withdrawn",
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		At:        s.now(),
	})
	chapters[chapterIndex] = chapter

	if err := s.persistChapters(ctx, &paper, chapters); err != nil {
		return dto.PaperResponse{}, err
	}

	s.recordActivity(ctx, actor, "chapter_unapproved", paper.ID, map[string]interface{}{"chapter": chapterIndex})

	return s.respond(paper, actor), nil
}

func (s *paperService) loadPaper(ctx context.Context, id uint) (models.Paper, error) {
	paper, err := s.papers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Paper{}, ErrPaperNotFound
		}
		return models.Paper{}, err
	}
	return paper, nil
}

func (s *paperService) loadOwnedChapters(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (models.Paper, []models.ChapterRecord, error) {
	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return models.Paper{}, nil, err
	}

	if actor.Role == models.RoleStudent && paper.StudentID != actor.ID {
		return models.Paper{}, nil, ErrNotPaperOwner
	}

	chapters := paper.ChapterList()
	if chapterIndex < 0 || chapterIndex >= len(chapters) {
		return models.Paper{}, nil, ErrChapterIndex
	}

	return paper, chapters, nil
}

// loadAdvisedChapters gates the decision surface. Only the supervising
// advisor or an admin may rule on a chapter; every other actor, the owning
// student included, is rejected.
func (s *paperService) loadAdvisedChapters(ctx context.Context, paperID uint, chapterIndex int, actor ActivityActor) (models.Paper, []models.ChapterRecord, error) {
	paper, err := s.loadPaper(ctx, paperID)
	if err != nil {
		return models.Paper{}, nil, err
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleAdvisor:
		student, err := s.users.GetByID(ctx, paper.StudentID)
		if err != nil {
			return models.Paper{}, nil, err
		}
		if student.AdvisorID == nil || *student.AdvisorID != actor.ID {
			return models.Paper{}, nil, ErrNotPaperAdvisor
		}
	default:
		return models.Paper{}, nil, ErrNotPaperAdvisor
	}

	chapters := paper.ChapterList()
	if chapterIndex < 0 || chapterIndex >= len(chapters) {
		return models.Paper{}, nil, ErrChapterIndex
	}

	return paper, chapters, nil
}

func (s *paperService) checkStudentLock(ctx context.Context, studentID uint) error {
	if s.locker == nil {
		return nil
	}
	locked, err := s.locker.IsLocked(ctx, studentID)
	if err != nil {
		return err
	}
	if locked {
		return ErrStudentLocked
	}
	return nil
}

func (s *paperService) persistChapters(ctx context.Context, paper *models.Paper, chapters []models.ChapterRecord) error {
	total := 0
	for _, chapter := range chapters {
		total += chapter.WordCount
	}
	paper.WordCount = total
	paper.SetChapters(chapters)

	return s.papers.Update(ctx, paper)
}

// resolveEffective applies the gate resolver. The bypass capability (admin
// role) skips time gating only; decided statuses and content presence still
// resolve normally so the admin view matches reality.
func (s *paperService) resolveEffective(paper models.Paper, chapter models.ChapterRecord, actor ActivityActor) models.ChapterStatus {
	bypass := actor.Role == models.RoleAdmin
	if bypass {
		if chapter.Status.Decided() || chapter.Status.InProgress() {
			return chapter.Status
		}
		if chapter.HasContent() {
			return models.ChapterDraft
		}
		return models.ChapterOpen
	}

	match := workflow.MatchSchedule(chapter, paper.Assignment.Schedules)
	if match.Kind == workflow.MatchAmbiguous {
		s.logger.Warn().
			Uint("paper_id", paper.ID).
			Str("chapter", chapter.Title).
			Msg("ambiguous schedule match for chapter")
	}

	fallback := workflow.Window{Start: paper.Assignment.ActivatedAt, End: paper.Assignment.Deadline}
	return workflow.ResolveChapterStatus(chapter, match, fallback, s.now())
}

func (s *paperService) respond(paper models.Paper, actor ActivityActor) dto.PaperResponse {
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
			Status:    s.resolveEffective(paper, chapter, actor),
			Feedback:  chapter.Feedback,
			History:   chapter.History,
		})
	}

	return dto.NewPaperResponse(paper, responses, s.minimumScore)
}

func (s *paperService) recordActivity(ctx context.Context, actor ActivityActor, action string, paperID uint, metadata map[string]interface{}) {
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
