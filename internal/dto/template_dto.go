package dto

import (
	"time"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// TemplatePageRequest is one page of a template upsert payload. Structure is
// optional; pages without one carry no chapters.
type TemplatePageRequest struct {
	Name      string              `json:"name" validate:"required,min=1"`
	Structure []models.ChapterDef `json:"structure" validate:"omitempty,dive"`
}

// TemplateUpsertRequest creates or replaces a template definition.
type TemplateUpsertRequest struct {
	Name  string                `json:"name" validate:"required,min=3"`
	Pages []TemplatePageRequest `json:"pages" validate:"required,min=1,dive"`
}

// TemplatePageResponse serializes one template page.
type TemplatePageResponse struct {
	ID        uint                `json:"id"`
	Name      string              `json:"name"`
	Position  int                 `json:"position"`
	Structure []models.ChapterDef `json:"structure"`
}

// TemplateResponse serializes a template with its ordered pages.
type TemplateResponse struct {
	ID        uint                   `json:"id"`
	Name      string                 `json:"name"`
	Pages     []TemplatePageResponse `json:"pages"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewTemplateResponse converts a model into a DTO.
func NewTemplateResponse(model models.Template) TemplateResponse {
	pages := make([]TemplatePageResponse, 0, len(model.Pages))
	for _, page := range model.Pages {
		pages = append(pages, TemplatePageResponse{
			ID:        page.ID,
			Name:      page.Name,
			Position:  page.Position,
			Structure: page.StructureDefs(),
		})
	}

	return TemplateResponse{
		ID:        model.ID,
		Name:      model.Name,
		Pages:     pages,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewTemplateResponseSlice converts a slice of models into DTOs.
func NewTemplateResponseSlice(templates []models.Template) []TemplateResponse {
	responses := make([]TemplateResponse, 0, len(templates))
	for _, template := range templates {
		responses = append(responses, NewTemplateResponse(template))
	}

	return responses
}
