package dto

import (
	"time"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// ViolationCreateRequest is the signal appended by the external detection
// collaborator.
type ViolationCreateRequest struct {
	StudentID   uint   `json:"student_id" validate:"required,gt=0"`
	Type        string `json:"type" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"omitempty,max=2000"`
}

// ViolationResponse serializes one recorded violation.
type ViolationResponse struct {
	ID          uint       `json:"id"`
	StudentID   uint       `json:"student_id"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ViolationStatusResponse carries the lock predicate consumed by the editing
// surface.
type ViolationStatusResponse struct {
	StudentID  uint  `json:"student_id"`
	Unresolved int64 `json:"unresolved"`
	Threshold  int   `json:"threshold"`
	Locked     bool  `json:"locked"`
	ResetCount int   `json:"reset_count"`
}

// NewViolationResponse converts a model into a DTO.
func NewViolationResponse(model models.Violation) ViolationResponse {
	return ViolationResponse{
		ID:          model.ID,
		StudentID:   model.StudentID,
		Type:        model.Type,
		Description: model.Description,
		Resolved:    model.Resolved,
		ResolvedAt:  model.ResolvedAt,
		CreatedAt:   model.CreatedAt,
	}
}

// NewViolationResponseSlice converts a slice of models into DTOs.
func NewViolationResponseSlice(violations []models.Violation) []ViolationResponse {
	responses := make([]ViolationResponse, 0, len(violations))
	for _, violation := range violations {
		responses = append(responses, NewViolationResponse(violation))
	}

	return responses
}
