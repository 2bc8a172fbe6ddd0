package models

import "time"

// ChapterStatus is the lifecycle tag of a single chapter.
type ChapterStatus string

const (
	ChapterLocked    ChapterStatus = "LOCKED"
	ChapterOpen      ChapterStatus = "OPEN"
	ChapterDraft     ChapterStatus = "DRAFT"
	ChapterSubmitted ChapterStatus = "SUBMITTED"
	ChapterApproved  ChapterStatus = "APPROVED"
	ChapterRevision  ChapterStatus = "REVISION"
)

// Decided reports whether an advisor has ruled on the chapter. Decided
// statuses survive a closed schedule window.
func (s ChapterStatus) Decided() bool {
	return s == ChapterApproved || s == ChapterRevision
}

// InProgress reports whether the student already holds the chapter in its
// editing lifecycle, which takes precedence over a bare OPEN resolution.
func (s ChapterStatus) InProgress() bool {
	return s == ChapterSubmitted || s == ChapterDraft
}

// FeedbackEntry is one append-only record of an advisor decision.
type FeedbackEntry struct {
	Status    ChapterStatus `json:"status"`
	Feedback  string        `json:"feedback"`
	ActorID   uint          `json:"actor_id"`
	ActorRole string        `json:"actor_role"`
	At        time.Time     `json:"at"`
}

// ChapterRecord is one chapter of a paper. Records live inside the paper's
// JSON column rather than their own table; the array is the single source of
// truth for per-chapter state.
type ChapterRecord struct {
	Title       string          `json:"title"`
	Key         string          `json:"key"`
	StructureID string          `json:"structure_id,omitempty"`
	MinWords    int             `json:"min_words"`
	Content     string          `json:"content"`
	WordCount   int             `json:"word_count"`
	Status      ChapterStatus   `json:"status"`
	Feedback    string          `json:"feedback"`
	History     []FeedbackEntry `json:"history,omitempty"`
}

// HasContent reports whether the student has written anything into the
// chapter yet.
func (c ChapterRecord) HasContent() bool {
	return c.WordCount > 0 || c.Content != ""
}
