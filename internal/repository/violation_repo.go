package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// ViolationRepository persists integrity violations and per-student reset
// counters.
type ViolationRepository interface {
	Create(ctx context.Context, violation *models.Violation) error
	ListByStudent(ctx context.Context, studentID uint, includeResolved bool) ([]models.Violation, error)
	CountUnresolved(ctx context.Context, studentID uint) (int64, error)
	ResolveAll(ctx context.Context, studentID uint, at time.Time) error
	GetProfile(ctx context.Context, studentID uint) (models.IntegrityProfile, error)
}

type violationRepository struct {
	db *gorm.DB
}

// NewViolationRepository constructs the repository.
func NewViolationRepository(db *gorm.DB) ViolationRepository {
	return &violationRepository{db: db}
}

func (r *violationRepository) Create(ctx context.Context, violation *models.Violation) error {
	return r.db.WithContext(ctx).Create(violation).Error
}

func (r *violationRepository) ListByStudent(ctx context.Context, studentID uint, includeResolved bool) ([]models.Violation, error) {
	query := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if !includeResolved {
		query = query.Where("resolved = ?", false)
	}

	var violations []models.Violation
	if err := query.Order("created_at DESC").Find(&violations).Error; err != nil {
		return nil, err
	}

	return violations, nil
}

func (r *violationRepository) CountUnresolved(ctx context.Context, studentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Violation{}).
		Where("student_id = ? AND resolved = ?", studentID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// ResolveAll flips every unresolved violation of the student to resolved and
// bumps the audit reset counter in the same transaction. Rows are never
// deleted.
func (r *violationRepository) ResolveAll(ctx context.Context, studentID uint, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Violation{}).
			Where("student_id = ? AND resolved = ?", studentID, false).
			Updates(map[string]interface{}{"resolved": true, "resolved_at": at}).Error; err != nil {
			return err
		}

		profile := models.IntegrityProfile{StudentID: studentID, ResetCount: 1}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"reset_count": gorm.Expr("integrity_profiles.reset_count + 1"), "updated_at": at}),
		}).Create(&profile).Error
	})
}

func (r *violationRepository) GetProfile(ctx context.Context, studentID uint) (models.IntegrityProfile, error) {
	var profile models.IntegrityProfile
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).First(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.IntegrityProfile{StudentID: studentID}, nil
		}
		return models.IntegrityProfile{}, err
	}

	return profile, nil
}
