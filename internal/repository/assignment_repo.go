package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// AssignmentFilter describes pagination & search options.
type AssignmentFilter struct {
	Search   string
	Sort     string
	Page     int
	PageSize int
}

// AssignmentRepository defines persistence operations for assignments and
// their chapter schedules.
type AssignmentRepository interface {
	List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id uint) error
	ReplaceSchedules(ctx context.Context, assignmentID uint, schedules []models.ChapterSchedule) error
	ListSchedules(ctx context.Context, assignmentID uint) ([]models.ChapterSchedule, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Assignment{}).Preload("Schedules")
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Assignment{})

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(subject) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := normalizeAssignmentSort(filter.Sort)
	if order != "" {
		query = query.Order(order)
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Preload("Schedules").Find(&assignments).Error; err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.baseQuery(ctx).Preload("Template.Pages").First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Omit("Schedules", "Papers", "Template").Save(assignment).Error
}

func (r *assignmentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Select("Schedules", "Papers").Delete(&models.Assignment{ID: id})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReplaceSchedules swaps the full schedule set of an assignment in one
// transaction. An empty slice is the explicit "delete all" signal.
func (r *assignmentRepository) ReplaceSchedules(ctx context.Context, assignmentID uint, schedules []models.ChapterSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("assignment_id = ?", assignmentID).Delete(&models.ChapterSchedule{}).Error; err != nil {
			return err
		}
		if len(schedules) == 0 {
			return nil
		}
		for i := range schedules {
			schedules[i].ID = 0
			schedules[i].AssignmentID = assignmentID
		}
		return tx.Create(&schedules).Error
	})
}

func (r *assignmentRepository) ListSchedules(ctx context.Context, assignmentID uint) ([]models.ChapterSchedule, error) {
	var schedules []models.ChapterSchedule
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("id ASC").
		Find(&schedules).Error; err != nil {
		return nil, err
	}

	return schedules, nil
}

func normalizeAssignmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "deadline", "deadline:asc", "deadline.asc":
		return "deadline ASC"
	case "-deadline", "deadline:desc", "deadline.desc":
		return "deadline DESC"
	case "updated_at", "updated_at:asc", "updated_at.asc":
		return "updated_at ASC"
	case "-updated_at", "updated_at:desc", "updated_at.desc":
		return "updated_at DESC"
	case "":
		return "created_at DESC"
	default:
		return ""
	}
}
