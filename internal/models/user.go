package models

import "time"

// Role values recognised by the workflow engine. The user directory itself is
// owned by the identity service; this table is the projection the engine needs
// for eligibility, advisor lookups and role gating.
const (
	RoleStudent  = "student"
	RoleAdvisor  = "advisor"
	RoleVerifier = "verifier"
	RoleExaminer = "examiner"
	RoleAdmin    = "admin"
)

// User represents an actor known to the workflow engine.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"size:32;not null;index" json:"role"`
	CohortID  *uint     `gorm:"index" json:"cohort_id"`
	AdvisorID *uint     `gorm:"index" json:"advisor_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Cohort  *Cohort `gorm:"foreignKey:CohortID" json:"cohort,omitempty"`
	Advisor *User   `gorm:"foreignKey:AdvisorID" json:"advisor,omitempty"`
}

// IsStudent reports whether the user holds the student role.
func (u User) IsStudent() bool {
	return u.Role == RoleStudent
}

// HasAdvisor reports whether a supervising advisor is assigned.
func (u User) HasAdvisor() bool {
	return u.AdvisorID != nil && *u.AdvisorID != 0
}

// Cohort groups students into an intake batch that assignments can target.
type Cohort struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Year      int       `gorm:"not null" json:"year"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
