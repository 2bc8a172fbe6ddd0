package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/repository"
)

// ViolationService is the ledger of integrity events. Detection is an
// external collaborator; this service only records events, exposes the lock
// predicate and performs the auditable soft reset.
type ViolationService interface {
	ViolationLocker
	Record(ctx context.Context, payload dto.ViolationCreateRequest) (dto.ViolationResponse, error)
	ListByStudent(ctx context.Context, studentID uint, includeResolved bool) ([]dto.ViolationResponse, error)
	Status(ctx context.Context, studentID uint) (dto.ViolationStatusResponse, error)
	Reset(ctx context.Context, studentID uint, actor ActivityActor) (dto.ViolationStatusResponse, error)
}

type violationService struct {
	repo      repository.ViolationRepository
	validator *validator.Validate
	cache     *redis.Client
	cacheTTL  time.Duration
	threshold int
	activity  ActivityRecorder
	events    EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewViolationService constructs the ledger. The cache is optional; when nil
// every count hits the database.
func NewViolationService(
	repo repository.ViolationRepository,
	validate *validator.Validate,
	cache *redis.Client,
	cacheTTL time.Duration,
	threshold int,
	activity ActivityRecorder,
	events EventPublisher,
	logger zerolog.Logger,
) ViolationService {
	if events == nil {
		events = NopEventPublisher{}
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &violationService{
		repo:      repo,
		validator: validate,
		cache:     cache,
		cacheTTL:  cacheTTL,
		threshold: threshold,
		activity:  activity,
		events:    events,
		logger:    logger.With().Str("component", "violation_service").Logger(),
		now:       time.Now,
	}
}

func (s *violationService) Record(ctx context.Context, payload dto.ViolationCreateRequest) (dto.ViolationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ViolationResponse{}, err
	}

	violation := models.Violation{
		StudentID:   payload.StudentID,
		Type:        payload.Type,
		Description: payload.Description,
	}

	if err := s.repo.Create(ctx, &violation); err != nil {
		return dto.ViolationResponse{}, err
	}

	s.invalidate(ctx, payload.StudentID)

	s.logger.Info().
		Uint("student_id", payload.StudentID).
		Str("type", payload.Type).
		Msg("violation recorded")

	s.events.Publish(ctx, WorkflowEvent{
		Name:      EventViolationRecorded,
		StudentID: payload.StudentID,
		Detail:    map[string]interface{}{"type": payload.Type},
	})

	return dto.NewViolationResponse(violation), nil
}

func (s *violationService) ListByStudent(ctx context.Context, studentID uint, includeResolved bool) ([]dto.ViolationResponse, error) {
	violations, err := s.repo.ListByStudent(ctx, studentID, includeResolved)
	if err != nil {
		return nil, err
	}

	return dto.NewViolationResponseSlice(violations), nil
}

// IsLocked is the predicate the editing surface consults: unresolved count at
// or above the configured threshold.
func (s *violationService) IsLocked(ctx context.Context, studentID uint) (bool, error) {
	count, err := s.countUnresolved(ctx, studentID)
	if err != nil {
		return false, err
	}

	return count >= int64(s.threshold), nil
}

func (s *violationService) Status(ctx context.Context, studentID uint) (dto.ViolationStatusResponse, error) {
	count, err := s.countUnresolved(ctx, studentID)
	if err != nil {
		return dto.ViolationStatusResponse{}, err
	}

	profile, err := s.repo.GetProfile(ctx, studentID)
	if err != nil {
		return dto.ViolationStatusResponse{}, err
	}

	return dto.ViolationStatusResponse{
		StudentID:  studentID,
		Unresolved: count,
		Threshold:  s.threshold,
		Locked:     count >= int64(s.threshold),
		ResetCount: profile.ResetCount,
	}, nil
}

// Reset marks every unresolved violation resolved in one atomic operation
// and bumps the audit reset counter. Violation rows are never deleted; the
// reset history itself is reportable data.
func (s *violationService) Reset(ctx context.Context, studentID uint, actor ActivityActor) (dto.ViolationStatusResponse, error) {
	if err := s.repo.ResolveAll(ctx, studentID, s.now()); err != nil {
		return dto.ViolationStatusResponse{}, err
	}

	s.invalidate(ctx, studentID)

	if s.activity != nil {
		id := studentID
		entry := ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "violations_reset",
			EntityType: "student",
			EntityID:   &id,
		}
		if _, err := s.activity.Record(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to record violation reset")
		}
	}

	return s.Status(ctx, studentID)
}

func (s *violationService) countUnresolved(ctx context.Context, studentID uint) (int64, error) {
	key := violationCountKey(studentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			if count, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				return count, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read violation count cache")
		}
	}

	count, err := s.repo.CountUnresolved(ctx, studentID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, strconv.FormatInt(count, 10), s.cacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store violation count cache")
		}
	}

	return count, nil
}

func (s *violationService) invalidate(ctx context.Context, studentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, violationCountKey(studentID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate violation count cache")
	}
}

func violationCountKey(studentID uint) string {
	return fmt.Sprintf("violations:unresolved:%d", studentID)
}
