package dto

import (
	"time"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// ChapterResponse is one gate-resolved chapter of a paper. Status is always
// the effective status, never the raw stored tag.
type ChapterResponse struct {
	Index     int                    `json:"index"`
	Title     string                 `json:"title"`
	Key       string                 `json:"key"`
	MinWords  int                    `json:"min_words"`
	Content   string                 `json:"content"`
	WordCount int                    `json:"word_count"`
	Status    models.ChapterStatus   `json:"status"`
	Feedback  string                 `json:"feedback"`
	History   []models.FeedbackEntry `json:"history,omitempty"`
}

// FinalDocumentResponse describes the uploaded final document, if any.
type FinalDocumentResponse struct {
	URL        string     `json:"url"`
	FileName   string     `json:"file_name"`
	Size       int64      `json:"size"`
	UploadedAt *time.Time `json:"uploaded_at"`
}

// PaperResponse is the serialized representation of one student's paper.
type PaperResponse struct {
	ID                      uint                   `json:"id"`
	AssignmentID            uint                   `json:"assignment_id"`
	StudentID               uint                   `json:"student_id"`
	Title                   string                 `json:"title"`
	Subject                 string                 `json:"subject"`
	Chapters                []ChapterResponse      `json:"chapters"`
	WordCount               int                    `json:"word_count"`
	TargetWordCount         int                    `json:"target_word_count"`
	FinalSubmissionUnlocked bool                   `json:"final_submission_unlocked"`
	FinalStatus             string                 `json:"final_status"`
	FinalFeedback           string                 `json:"final_feedback"`
	FinalDocument           *FinalDocumentResponse `json:"final_document,omitempty"`
	SimilarityScore         *float64               `json:"similarity_score"`
	IntegrityStatus         string                 `json:"integrity_status"`
	IntegrityFlagged        bool                   `json:"integrity_flagged"`
	Grade                   *float64               `json:"grade"`
	GradeFeedback           string                 `json:"grade_feedback"`
	CreatedAt               time.Time              `json:"created_at"`
	UpdatedAt               time.Time              `json:"updated_at"`
}

// SaveDraftRequest carries a chapter content save.
type SaveDraftRequest struct {
	Content string `json:"content" validate:"required"`
}

// DecideChapterRequest carries an advisor's chapter decision.
type DecideChapterRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REVISION"`
	Feedback string `json:"feedback"`
}

// FinalDecisionRequest carries an advisor's final-document decision.
type FinalDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REVISION"`
	Feedback string `json:"feedback"`
}

// IntegrityDecisionRequest carries the institutional verifier's ruling.
type IntegrityDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=VERIFIED REJECTED"`
}

// IntegrityReportResponse exposes the similarity score and threshold context
// the verifier decides on.
type IntegrityReportResponse struct {
	PaperID         uint     `json:"paper_id"`
	SimilarityScore *float64 `json:"similarity_score"`
	MinimumScore    float64  `json:"minimum_score"`
	Flagged         bool     `json:"flagged"`
	IntegrityStatus string   `json:"integrity_status"`
}

// GradeRequest carries an examiner's grade. Re-grading overwrites the prior
// score and feedback.
type GradeRequest struct {
	Score    float64 `json:"score" validate:"gte=0,lte=100"`
	Feedback string  `json:"feedback"`
}

// PaperFilter narrows paper list queries.
type PaperFilter struct {
	AssignmentID *uint   `validate:"omitempty,gt=0"`
	StudentID    *uint   `validate:"omitempty,gt=0"`
	FinalStatus  *string `validate:"omitempty,oneof=none uploaded approved revision"`
}

// NewPaperResponse converts a model plus its gate-resolved chapters into a
// DTO. The aggregate gate is computed here from the resolved chapters, never
// read from storage.
func NewPaperResponse(model models.Paper, chapters []ChapterResponse, minimumScore float64) PaperResponse {
	var finalDocument *FinalDocumentResponse
	if model.HasFinalDocument() {
		finalDocument = &FinalDocumentResponse{
			URL:        model.FinalDocumentURL,
			FileName:   model.FinalDocumentName,
			Size:       model.FinalDocumentSize,
			UploadedAt: model.FinalUploadedAt,
		}
	}

	unlocked := len(chapters) > 0
	for _, chapter := range chapters {
		if chapter.Status != models.ChapterApproved {
			unlocked = false
			break
		}
	}

	flagged := model.SimilarityScore != nil && *model.SimilarityScore < minimumScore

	return PaperResponse{
		ID:                      model.ID,
		AssignmentID:            model.AssignmentID,
		StudentID:               model.StudentID,
		Title:                   model.Title,
		Subject:                 model.Subject,
		Chapters:                chapters,
		WordCount:               model.WordCount,
		TargetWordCount:         model.TargetWordCount,
		FinalSubmissionUnlocked: unlocked,
		FinalStatus:             model.FinalStatus,
		FinalFeedback:           model.FinalFeedback,
		FinalDocument:           finalDocument,
		SimilarityScore:         model.SimilarityScore,
		IntegrityStatus:         model.IntegrityStatus,
		IntegrityFlagged:        flagged,
		Grade:                   model.Grade,
		GradeFeedback:           model.GradeFeedback,
		CreatedAt:               model.CreatedAt,
		UpdatedAt:               model.UpdatedAt,
	}
}
