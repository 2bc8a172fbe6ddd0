package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/repository"
)

// ErrTemplateNotFound indicates a template could not be found.
var ErrTemplateNotFound = errors.New("template not found")

// ErrInvalidStructure indicates a page structure failed schema validation.
var ErrInvalidStructure = errors.New("invalid chapter structure")

// chapterStructureSchema constrains the page structure payload: chapters need
// a non-negative minWords and subsections nest recursively.
const chapterStructureSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": { "$ref": "#/$defs/chapter" },
  "$defs": {
    "chapter": {
      "type": "object",
      "properties": {
        "id": { "type": "string" },
        "title": { "type": "string" },
        "minWords": { "type": "integer", "minimum": 0 },
        "subsections": {
          "type": "array",
          "items": { "$ref": "#/$defs/chapter" }
        }
      },
      "required": ["minWords"],
      "additionalProperties": false
    }
  }
}`

// TemplateService manages document templates and validates their chapter
// structures before they can seed papers.
type TemplateService interface {
	List(ctx context.Context) ([]dto.TemplateResponse, error)
	Get(ctx context.Context, id uint) (dto.TemplateResponse, error)
	Create(ctx context.Context, payload dto.TemplateUpsertRequest) (dto.TemplateResponse, error)
	Update(ctx context.Context, id uint, payload dto.TemplateUpsertRequest) (dto.TemplateResponse, error)
	Delete(ctx context.Context, id uint) error
}

type templateService struct {
	repo      repository.TemplateRepository
	validator *validator.Validate
	schema    *jsonschema.Schema
	logger    zerolog.Logger
}

// NewTemplateService constructs a TemplateService instance.
func NewTemplateService(repo repository.TemplateRepository, validate *validator.Validate, logger zerolog.Logger) (TemplateService, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("chapter_structure.json", strings.NewReader(chapterStructureSchema)); err != nil {
		return nil, fmt.Errorf("failed to register structure schema: %w", err)
	}
	schema, err := compiler.Compile("chapter_structure.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile structure schema: %w", err)
	}

	return &templateService{
		repo:      repo,
		validator: validate,
		schema:    schema,
		logger:    logger.With().Str("component", "template_service").Logger(),
	}, nil
}

func (s *templateService) List(ctx context.Context) ([]dto.TemplateResponse, error) {
	templates, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewTemplateResponseSlice(templates), nil
}

func (s *templateService) Get(ctx context.Context, id uint) (dto.TemplateResponse, error) {
	template, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TemplateResponse{}, ErrTemplateNotFound
		}
		return dto.TemplateResponse{}, err
	}

	return dto.NewTemplateResponse(template), nil
}

func (s *templateService) Create(ctx context.Context, payload dto.TemplateUpsertRequest) (dto.TemplateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TemplateResponse{}, err
	}

	pages, err := s.buildPages(payload.Pages)
	if err != nil {
		return dto.TemplateResponse{}, err
	}

	template := models.Template{Name: payload.Name, Pages: pages}
	if err := s.repo.Create(ctx, &template); err != nil {
		return dto.TemplateResponse{}, err
	}

	s.logger.Info().Uint("template_id", template.ID).Msg("template created")

	return dto.NewTemplateResponse(template), nil
}

func (s *templateService) Update(ctx context.Context, id uint, payload dto.TemplateUpsertRequest) (dto.TemplateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TemplateResponse{}, err
	}

	template, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TemplateResponse{}, ErrTemplateNotFound
		}
		return dto.TemplateResponse{}, err
	}

	pages, err := s.buildPages(payload.Pages)
	if err != nil {
		return dto.TemplateResponse{}, err
	}

	template.Name = payload.Name
	template.Pages = pages
	if err := s.repo.Update(ctx, &template); err != nil {
		return dto.TemplateResponse{}, err
	}

	updated, err := s.repo.GetByID(ctx, template.ID)
	if err != nil {
		return dto.TemplateResponse{}, err
	}

	return dto.NewTemplateResponse(updated), nil
}

func (s *templateService) Delete(ctx context.Context, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		return err
	}
	return nil
}

func (s *templateService) buildPages(requests []dto.TemplatePageRequest) ([]models.TemplatePage, error) {
	pages := make([]models.TemplatePage, 0, len(requests))
	for i, request := range requests {
		page := models.TemplatePage{Name: request.Name, Position: i + 1}
		if len(request.Structure) > 0 {
			if err := s.validateStructure(request.Structure); err != nil {
				return nil, fmt.Errorf("%w: page %q: %v", ErrInvalidStructure, request.Name, err)
			}
			page.SetStructure(request.Structure)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (s *templateService) validateStructure(defs []models.ChapterDef) error {
	raw, err := json.Marshal(defs)
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	return s.schema.Validate(doc)
}
