package models

import (
	"strings"
	"time"
)

// Assignment statuses. Draft is a manual flag set by an administrator; the
// remaining values are computed from the activation window on read.
const (
	AssignmentStatusDraft     = "DRAFT"
	AssignmentStatusScheduled = "scheduled"
	AssignmentStatusActive    = "active"
	AssignmentStatusClosed    = "closed"
)

// Assignment is an institution-defined writing task issued to a cohort or to
// every student. Deleting an assignment cascades its schedules and papers.
type Assignment struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Subject     string     `gorm:"size:255" json:"subject"`
	TemplateID  uint       `gorm:"not null" json:"template_id"`
	ActivatedAt *time.Time `json:"activated_at"`
	Deadline    *time.Time `json:"deadline"`
	CohortID    *uint      `gorm:"index" json:"cohort_id"`
	Status      string     `gorm:"size:32;not null;default:''" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Template  Template          `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Cohort    *Cohort           `gorm:"foreignKey:CohortID" json:"cohort,omitempty"`
	Schedules []ChapterSchedule `gorm:"foreignKey:AssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"schedules,omitempty"`
	Papers    []Paper           `gorm:"foreignKey:AssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// TargetsAllStudents reports whether the assignment audience is unscoped.
func (a Assignment) TargetsAllStudents() bool {
	return a.CohortID == nil || *a.CohortID == 0
}

// EffectiveStatus returns the manual DRAFT flag when set, otherwise a status
// derived from the activation window at the reference time.
func (a Assignment) EffectiveStatus(reference time.Time) string {
	if a.Status == AssignmentStatusDraft {
		return AssignmentStatusDraft
	}
	if a.ActivatedAt != nil && reference.Before(*a.ActivatedAt) {
		return AssignmentStatusScheduled
	}
	if a.Deadline != nil && reference.After(*a.Deadline) {
		return AssignmentStatusClosed
	}
	return AssignmentStatusActive
}

// ChapterSchedule opens and closes one chapter of an assignment. IsOpen is a
// master switch: an explicit false force-closes the chapter regardless of the
// window, nil defers to the window.
type ChapterSchedule struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AssignmentID uint       `gorm:"not null;index" json:"assignment_id"`
	StructureID  string     `gorm:"size:64" json:"structure_id"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	ChapterKey   string     `gorm:"size:255;not null;index" json:"chapter_key"`
	OpensAt      *time.Time `json:"opens_at"`
	ClosesAt     *time.Time `json:"closes_at"`
	IsOpen       *bool      `json:"is_open"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ForceClosed reports whether the master switch explicitly closes the chapter.
func (s ChapterSchedule) ForceClosed() bool {
	return s.IsOpen != nil && !*s.IsOpen
}

// HasWindow reports whether the schedule carries a usable time window.
func (s ChapterSchedule) HasWindow() bool {
	return s.OpensAt != nil && s.ClosesAt != nil
}

// NormalizeChapterKey produces the stable matching key for a chapter title.
// Structural ids are preferred where present; titles are the legacy fallback
// for structures that predate stable ids.
func NormalizeChapterKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
