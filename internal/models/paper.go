package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Final-document stage statuses. This field is independent from per-chapter
// status; the aggregate "every chapter approved" gate is never stored.
const (
	FinalStatusNone     = "none"
	FinalStatusUploaded = "uploaded"
	FinalStatusApproved = "approved"
	FinalStatusRevision = "revision"
)

// Integrity verification statuses. The decision is always made by a human
// verifier; the engine only computes and stores the similarity score.
const (
	IntegrityPending  = "pending"
	IntegrityVerified = "VERIFIED"
	IntegrityRejected = "REJECTED"
)

// Paper is one student's instance of an assignment. Uniqueness on
// (assignment_id, student_id) is the invariant the distribution step relies
// on: a concurrent duplicate insert must fail here, not produce two rows.
type Paper struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	AssignmentID    uint           `gorm:"not null;uniqueIndex:idx_papers_assignment_student" json:"assignment_id"`
	StudentID       uint           `gorm:"not null;uniqueIndex:idx_papers_assignment_student" json:"student_id"`
	Title           string         `gorm:"size:255;not null" json:"title"`
	Subject         string         `gorm:"size:255" json:"subject"`
	Chapters        datatypes.JSON `gorm:"type:json" json:"-"`
	WordCount       int            `gorm:"not null;default:0" json:"word_count"`
	TargetWordCount int            `gorm:"not null;default:0" json:"target_word_count"`

	FinalDocumentURL  string     `gorm:"size:512" json:"final_document_url"`
	FinalDocumentName string     `gorm:"size:255" json:"final_document_name"`
	FinalDocumentSize int64      `json:"final_document_size"`
	FinalUploadedAt   *time.Time `json:"final_uploaded_at"`
	FinalDocumentText string     `gorm:"type:text" json:"-"`
	FinalStatus       string     `gorm:"size:32;not null;default:'none'" json:"final_status"`
	FinalFeedback     string     `gorm:"type:text" json:"final_feedback"`

	SimilarityScore *float64 `json:"similarity_score"`
	IntegrityStatus string   `gorm:"size:32;not null;default:'pending'" json:"integrity_status"`

	Grade         *float64 `json:"grade"`
	GradeFeedback string   `gorm:"type:text" json:"grade_feedback"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Assignment Assignment `gorm:"foreignKey:AssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student    User       `gorm:"foreignKey:StudentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// SetChapters serializes the chapter array into the JSON storage column.
func (p *Paper) SetChapters(chapters []ChapterRecord) {
	data, err := json.Marshal(chapters)
	if err != nil {
		p.Chapters = datatypes.JSON([]byte("[]"))
		return
	}
	p.Chapters = datatypes.JSON(data)
}

// ChapterList deserializes the stored chapter array.
func (p Paper) ChapterList() []ChapterRecord {
	if len(p.Chapters) == 0 {
		return nil
	}

	var chapters []ChapterRecord
	if err := json.Unmarshal(p.Chapters, &chapters); err != nil {
		return nil
	}

	return chapters
}

// HasFinalDocument reports whether a final document is currently attached.
func (p Paper) HasFinalDocument() bool {
	return p.FinalDocumentURL != ""
}

// FinalApproved reports whether the advisor has accepted the final document.
func (p Paper) FinalApproved() bool {
	return p.FinalStatus == FinalStatusApproved
}
