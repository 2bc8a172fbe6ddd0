package models

import "time"

// Violation is one detected integrity event attributed to a student. Rows are
// never hard-deleted: a reset flips them to resolved so the history stays
// reportable.
type Violation struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StudentID   uint       `gorm:"not null;index" json:"student_id"`
	Type        string     `gorm:"size:64;not null" json:"type"`
	Description string     `gorm:"type:text" json:"description"`
	Resolved    bool       `gorm:"not null;default:false;index" json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IntegrityProfile keeps per-student administrative counters. ResetCount is
// an audit metric only and never feeds the lock predicate.
type IntegrityProfile struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StudentID  uint      `gorm:"not null;uniqueIndex" json:"student_id"`
	ResetCount int       `gorm:"not null;default:0" json:"reset_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
