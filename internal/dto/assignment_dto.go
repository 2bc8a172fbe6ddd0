package dto

import (
	"time"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title       string  `json:"title" validate:"required,min=3"`
	Subject     string  `json:"subject" validate:"omitempty,min=2"`
	TemplateID  uint    `json:"template_id" validate:"required,gt=0"`
	ActivatedAt *string `json:"activated_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Deadline    *string `json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CohortID    *uint   `json:"cohort_id"`
	Draft       bool    `json:"draft"`
}

// AssignmentUpdateRequest describes the payload for updating an assignment.
type AssignmentUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=3"`
	Subject     *string `json:"subject" validate:"omitempty,min=2"`
	TemplateID  *uint   `json:"template_id" validate:"omitempty,gt=0"`
	ActivatedAt *string `json:"activated_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Deadline    *string `json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CohortID    *uint   `json:"cohort_id"`
	Draft       *bool   `json:"draft"`
}

// ScheduleUpsertRequest is one chapter schedule row in a replace-all payload.
// Sending an empty schedule list deletes every schedule of the assignment.
type ScheduleUpsertRequest struct {
	StructureID string  `json:"structure_id"`
	Title       string  `json:"title" validate:"required,min=1"`
	OpensAt     *string `json:"opens_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ClosesAt    *string `json:"closes_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	IsOpen      *bool   `json:"is_open"`
}

// ScheduleResponse serializes one chapter schedule.
type ScheduleResponse struct {
	ID          uint       `json:"id"`
	StructureID string     `json:"structure_id"`
	Title       string     `json:"title"`
	ChapterKey  string     `json:"chapter_key"`
	OpensAt     *time.Time `json:"opens_at"`
	ClosesAt    *time.Time `json:"closes_at"`
	IsOpen      *bool      `json:"is_open"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID          uint               `json:"id"`
	Title       string             `json:"title"`
	Subject     string             `json:"subject"`
	TemplateID  uint               `json:"template_id"`
	ActivatedAt *time.Time         `json:"activated_at"`
	Deadline    *time.Time         `json:"deadline"`
	CohortID    *uint              `json:"cohort_id"`
	Status      string             `json:"status"`
	Schedules   []ScheduleResponse `json:"schedules"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// DistributionReport summarises one distribution pass over an assignment's
// audience. Failures are per-student and never abort the batch.
type DistributionReport struct {
	Eligible int    `json:"eligible"`
	Existing int    `json:"existing"`
	Created  int    `json:"created"`
	Failed   []uint `json:"failed,omitempty"`
}

// NewScheduleResponse converts a model into a DTO.
func NewScheduleResponse(model models.ChapterSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:          model.ID,
		StructureID: model.StructureID,
		Title:       model.Title,
		ChapterKey:  model.ChapterKey,
		OpensAt:     model.OpensAt,
		ClosesAt:    model.ClosesAt,
		IsOpen:      model.IsOpen,
	}
}

// NewAssignmentResponse converts a model into a DTO. Status is the effective
// status at the reference time, never the raw stored flag.
func NewAssignmentResponse(model models.Assignment, reference time.Time) AssignmentResponse {
	schedules := make([]ScheduleResponse, 0, len(model.Schedules))
	for _, schedule := range model.Schedules {
		schedules = append(schedules, NewScheduleResponse(schedule))
	}

	return AssignmentResponse{
		ID:          model.ID,
		Title:       model.Title,
		Subject:     model.Subject,
		TemplateID:  model.TemplateID,
		ActivatedAt: model.ActivatedAt,
		Deadline:    model.Deadline,
		CohortID:    model.CohortID,
		Status:      model.EffectiveStatus(reference),
		Schedules:   schedules,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, reference time.Time) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, reference))
	}

	return responses
}
