package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// UserRepository provides access to the engine's projection of the user
// directory.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
	ListStudents(ctx context.Context, cohortID *uint) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) ListStudents(ctx context.Context, cohortID *uint) ([]models.User, error) {
	query := r.db.WithContext(ctx).Where("role = ?", models.RoleStudent)
	if cohortID != nil && *cohortID != 0 {
		query = query.Where("cohort_id = ?", *cohortID)
	}

	var students []models.User
	if err := query.Order("id ASC").Find(&students).Error; err != nil {
		return nil, err
	}

	return students, nil
}
