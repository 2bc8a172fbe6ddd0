package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

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

// ErrAssignmentNotFound indicates an assignment could not be found.
var ErrAssignmentNotFound = errors.New("assignment not found")

// FileUploader persists binary assets and returns a public URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AssignmentService exposes assignment domain use cases. Creating or updating
// an assignment always re-runs distribution, since the audience or template
// may have changed; distribution is additive and idempotent so re-triggering
// is always safe.
type AssignmentService interface {
	List(ctx context.Context, filter repository.AssignmentFilter) ([]dto.AssignmentResponse, int64, error)
	Get(ctx context.Context, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, dto.DistributionReport, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, dto.DistributionReport, error)
	Delete(ctx context.Context, id uint) error
	UpdateSchedules(ctx context.Context, assignmentID uint, schedules []dto.ScheduleUpsertRequest) ([]dto.ScheduleResponse, error)
	Distribute(ctx context.Context, assignmentID uint) (dto.DistributionReport, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	templates   repository.TemplateRepository
	papers      repository.PaperRepository
	users       repository.UserRepository
	validator   *validator.Validate
	events      EventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAssignmentService constructs an AssignmentService instance.
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	templates repository.TemplateRepository,
	papers repository.PaperRepository,
	users repository.UserRepository,
	validate *validator.Validate,
	events EventPublisher,
	logger zerolog.Logger,
) AssignmentService {
	if events == nil {
		events = NopEventPublisher{}
	}
	return &assignmentService{
		assignments: assignments,
		templates:   templates,
		papers:      papers,
		users:       users,
		validator:   validate,
		events:      events,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
		now:         time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, filter repository.AssignmentFilter) ([]dto.AssignmentResponse, int64, error) {
	assignments, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return dto.NewAssignmentResponseSlice(assignments, s.now()), total, nil
}

func (s *assignmentService) Get(ctx context.Context, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment, s.now()), nil
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, dto.DistributionReport, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	if _, err := s.templates.GetByID(ctx, payload.TemplateID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, dto.DistributionReport{}, ErrTemplateNotFound
		}
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	assignment := models.Assignment{
		Title:      payload.Title,
		Subject:    payload.Subject,
		TemplateID: payload.TemplateID,
		CohortID:   payload.CohortID,
	}
	if payload.Draft {
		assignment.Status = models.AssignmentStatusDraft
	}

	var err error
	if assignment.ActivatedAt, err = parseTimePtr(payload.ActivatedAt); err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}
	if assignment.Deadline, err = parseTimePtr(payload.Deadline); err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	report, err := s.Distribute(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	s.logger.Info().Uint("assignment_id", assignment.ID).Int("papers_created", report.Created).Msg("assignment created")

	return dto.NewAssignmentResponse(assignment, s.now()), report, nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, dto.DistributionReport, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, dto.DistributionReport{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	if payload.Title != nil {
		assignment.Title = *payload.Title
	}
	if payload.Subject != nil {
		assignment.Subject = *payload.Subject
	}
	if payload.TemplateID != nil {
		if _, err := s.templates.GetByID(ctx, *payload.TemplateID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.AssignmentResponse{}, dto.DistributionReport{}, ErrTemplateNotFound
			}
			return dto.AssignmentResponse{}, dto.DistributionReport{}, err
		}
		assignment.TemplateID = *payload.TemplateID
	}
	if payload.ActivatedAt != nil {
		if assignment.ActivatedAt, err = parseTimePtr(payload.ActivatedAt); err != nil {
			return dto.AssignmentResponse{}, dto.DistributionReport{}, err
		}
	}
	if payload.Deadline != nil {
		if assignment.Deadline, err = parseTimePtr(payload.Deadline); err != nil {
			return dto.AssignmentResponse{}, dto.DistributionReport{}, err
		}
	}
	if payload.CohortID != nil {
		assignment.CohortID = payload.CohortID
	}
	if payload.Draft != nil {
		if *payload.Draft {
			assignment.Status = models.AssignmentStatusDraft
		} else {
			assignment.Status = ""
		}
	}

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	// The audience or template may have changed; distribution only ever
	// adds missing papers, never revokes existing ones.
	report, err := s.Distribute(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, dto.DistributionReport{}, err
	}

	return dto.NewAssignmentResponse(assignment, s.now()), report, nil
}

func (s *assignmentService) Delete(ctx context.Context, id uint) error {
	if err := s.assignments.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}
	return nil
}

// UpdateSchedules replaces the full schedule set. An empty payload is the
// explicit "delete all schedules" signal, not a no-op.
func (s *assignmentService) UpdateSchedules(ctx context.Context, assignmentID uint, payload []dto.ScheduleUpsertRequest) ([]dto.ScheduleResponse, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	schedules := make([]models.ChapterSchedule, 0, len(payload))
	for _, request := range payload {
		if err := s.validator.Struct(request); err != nil {
			return nil, err
		}

		schedule := models.ChapterSchedule{
			AssignmentID: assignmentID,
			StructureID:  request.StructureID,
			Title:        request.Title,
			ChapterKey:   models.NormalizeChapterKey(request.Title),
			IsOpen:       request.IsOpen,
		}

		var err error
		if schedule.OpensAt, err = parseTimePtr(request.OpensAt); err != nil {
			return nil, err
		}
		if schedule.ClosesAt, err = parseTimePtr(request.ClosesAt); err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	if err := s.assignments.ReplaceSchedules(ctx, assignmentID, schedules); err != nil {
		return nil, err
	}

	stored, err := s.assignments.ListSchedules(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ScheduleResponse, 0, len(stored))
	for _, schedule := range stored {
		responses = append(responses, dto.NewScheduleResponse(schedule))
	}

	return responses, nil
}

// Distribute ensures every currently-eligible student holds exactly one paper
// for the assignment. It only ever adds missing papers: existing papers are
// never overwritten, duplicated or revoked, so the operation is safe to call
// arbitrarily many times and under concurrent invocation.
func (s *assignmentService) Distribute(ctx context.Context, assignmentID uint) (dto.DistributionReport, error) {
	tracer := otel.Tracer("github.com/scriptoria/scriptoria-api/internal/service/assignment")
	ctx, span := tracer.Start(ctx, "assignment.distribute")
	span.SetAttributes(attribute.Int64("assignment.id", int64(assignmentID)))
	defer span.End()

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DistributionReport{}, ErrAssignmentNotFound
		}
		return dto.DistributionReport{}, err
	}

	var cohortID *uint
	if !assignment.TargetsAllStudents() {
		cohortID = assignment.CohortID
	}

	students, err := s.users.ListStudents(ctx, cohortID)
	if err != nil {
		return dto.DistributionReport{}, err
	}

	existingIDs, err := s.papers.ListStudentIDs(ctx, assignment.ID)
	if err != nil {
		return dto.DistributionReport{}, err
	}
	existing := make(map[uint]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	chapters, target := workflow.ResolveStructure(assignment.Template.Pages)

	report := dto.DistributionReport{Eligible: len(students), Existing: len(existingIDs)}
	for _, student := range students {
		if _, ok := existing[student.ID]; ok {
			continue
		}

		paper := models.Paper{
			AssignmentID:    assignment.ID,
			StudentID:       student.ID,
			Title:           assignment.Title,
			Subject:         assignment.Subject,
			TargetWordCount: target,
			FinalStatus:     models.FinalStatusNone,
			IntegrityStatus: models.IntegrityPending,
		}
		paper.SetChapters(chapters)

		if err := s.papers.Create(ctx, &paper); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent distribution won the race; the paper
				// exists, which is what we wanted.
				report.Existing++
				continue
			}
			// One student's failure never aborts the batch; an admin
			// can re-trigger through the idempotent update path.
			s.logger.Error().Err(err).
				Uint("assignment_id", assignment.ID).
				Uint("student_id", student.ID).
				Msg("failed to distribute paper")
			report.Failed = append(report.Failed, student.ID)
			continue
		}

		report.Created++
		s.events.Publish(ctx, WorkflowEvent{
			Name:      EventPaperDistributed,
			PaperID:   paper.ID,
			StudentID: student.ID,
			Detail:    map[string]interface{}{"assignment_id": assignment.ID},
		})
	}

	return report, nil
}

func parseTimePtr(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", *value, err)
	}
	return &parsed, nil
}
