package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// PaperFilter narrows paper queries.
type PaperFilter struct {
	AssignmentID *uint
	StudentID    *uint
	AdvisorID    *uint
	FinalStatus  *string
}

// PaperRepository defines persistence operations for papers.
type PaperRepository interface {
	List(ctx context.Context, filter PaperFilter) ([]models.Paper, error)
	GetByID(ctx context.Context, id uint) (models.Paper, error)
	ListStudentIDs(ctx context.Context, assignmentID uint) ([]uint, error)
	Create(ctx context.Context, paper *models.Paper) error
	Update(ctx context.Context, paper *models.Paper) error
}

type paperRepository struct {
	db *gorm.DB
}

// NewPaperRepository instantiates the repository.
func NewPaperRepository(db *gorm.DB) PaperRepository {
	return &paperRepository{db: db}
}

func (r *paperRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Paper{}).
		Preload("Assignment").
		Preload("Assignment.Schedules").
		Preload("Student")
}

func (r *paperRepository) List(ctx context.Context, filter PaperFilter) ([]models.Paper, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.AdvisorID != nil {
		query = query.Where("student_id IN (?)", r.db.Model(&models.User{}).
			Select("id").
			Where("advisor_id = ?", *filter.AdvisorID))
	}

	if filter.FinalStatus != nil {
		query = query.Where("final_status = ?", *filter.FinalStatus)
	}

	var papers []models.Paper
	if err := query.Order("created_at DESC").Find(&papers).Error; err != nil {
		return nil, err
	}

	return papers, nil
}

func (r *paperRepository) GetByID(ctx context.Context, id uint) (models.Paper, error) {
	var paper models.Paper
	if err := r.baseQuery(ctx).First(&paper, id).Error; err != nil {
		return models.Paper{}, err
	}

	return paper, nil
}

// ListStudentIDs returns the students that already hold a paper for the
// assignment. The distribution step diffs against this set.
func (r *paperRepository) ListStudentIDs(ctx context.Context, assignmentID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Paper{}).
		Where("assignment_id = ?", assignmentID).
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *paperRepository) Create(ctx context.Context, paper *models.Paper) error {
	return r.db.WithContext(ctx).Create(paper).Error
}

func (r *paperRepository) Update(ctx context.Context, paper *models.Paper) error {
	return r.db.WithContext(ctx).Omit("Assignment", "Student").Save(paper).Error
}
