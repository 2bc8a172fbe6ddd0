package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// TemplateRepository defines persistence operations for document templates.
type TemplateRepository interface {
	List(ctx context.Context) ([]models.Template, error)
	GetByID(ctx context.Context, id uint) (models.Template, error)
	Create(ctx context.Context, template *models.Template) error
	Update(ctx context.Context, template *models.Template) error
	Delete(ctx context.Context, id uint) error
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository instantiates a GORM-backed repository.
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) List(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	if err := r.db.WithContext(ctx).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Find(&templates).Error; err != nil {
		return nil, err
	}

	return templates, nil
}

func (r *templateRepository) GetByID(ctx context.Context, id uint) (models.Template, error) {
	var template models.Template
	if err := r.db.WithContext(ctx).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&template, id).Error; err != nil {
		return models.Template{}, err
	}

	return template, nil
}

func (r *templateRepository) Create(ctx context.Context, template *models.Template) error {
	return r.db.WithContext(ctx).Create(template).Error
}

func (r *templateRepository) Update(ctx context.Context, template *models.Template) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", template.ID).Delete(&models.TemplatePage{}).Error; err != nil {
			return err
		}
		for i := range template.Pages {
			template.Pages[i].ID = 0
			template.Pages[i].TemplateID = template.ID
		}
		return tx.Save(template).Error
	})
}

func (r *templateRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Select("Pages").Delete(&models.Template{ID: id})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
