package workflow

import (
	"time"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// MatchKind classifies how a chapter was paired with its schedule.
type MatchKind int

const (
	// MatchNone means no schedule row exists for the chapter.
	MatchNone MatchKind = iota
	// MatchByID means the structural id matched exactly.
	MatchByID
	// MatchByTitle means the normalized title matched; the legacy path for
	// structures that predate stable ids.
	MatchByTitle
	// MatchAmbiguous means more than one schedule matched in the same
	// phase. The first match is used, but callers can detect and log it.
	MatchAmbiguous
)

// ScheduleMatch is the typed result of the two-phase schedule lookup.
type ScheduleMatch struct {
	Kind     MatchKind
	Schedule *models.ChapterSchedule
}

// Found reports whether a schedule was located for the chapter.
func (m ScheduleMatch) Found() bool {
	return m.Schedule != nil
}

// MatchSchedule pairs a chapter with its schedule row: structural id equality
// first, then case-insensitive trimmed title equality. A double match within
// a phase is surfaced as ambiguous rather than silently taking the first hit.
func MatchSchedule(chapter models.ChapterRecord, schedules []models.ChapterSchedule) ScheduleMatch {
	if chapter.StructureID != "" {
		match := matchPhase(schedules, func(s models.ChapterSchedule) bool {
			return s.StructureID != "" && s.StructureID == chapter.StructureID
		}, MatchByID)
		if match.Found() {
			return match
		}
	}

	key := chapter.Key
	if key == "" {
		key = models.NormalizeChapterKey(chapter.Title)
	}
	return matchPhase(schedules, func(s models.ChapterSchedule) bool {
		return s.ChapterKey == key || models.NormalizeChapterKey(s.Title) == key
	}, MatchByTitle)
}

func matchPhase(schedules []models.ChapterSchedule, predicate func(models.ChapterSchedule) bool, kind MatchKind) ScheduleMatch {
	var found *models.ChapterSchedule
	count := 0
	for i := range schedules {
		if predicate(schedules[i]) {
			count++
			if found == nil {
				found = &schedules[i]
			}
		}
	}

	if found == nil {
		return ScheduleMatch{Kind: MatchNone}
	}
	if count > 1 {
		return ScheduleMatch{Kind: MatchAmbiguous, Schedule: found}
	}
	return ScheduleMatch{Kind: kind, Schedule: found}
}

// Window is an inclusive time range. A nil bound is unbounded on that side.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Defined reports whether the window constrains anything at all.
func (w Window) Defined() bool {
	return w.Start != nil || w.End != nil
}

// Contains applies the inclusive [start, end] rule.
func (w Window) Contains(at time.Time) bool {
	if w.Start != nil && at.Before(*w.Start) {
		return false
	}
	if w.End != nil && at.After(*w.End) {
		return false
	}
	return true
}

// ResolveChapterStatus derives the effective accessibility of one chapter
// from its stored lifecycle status, its schedule (if any) and the
// assignment's own window as fallback.
//
// Precedence, highest first: a decided status (APPROVED/REVISION) is returned
// unconditionally, so a closed window never hides an approval or revision
// feedback; an explicit force-close wins next; then the schedule window; then
// the assignment window; absent any constraint the chapter is open. When time
// resolution yields OPEN, an in-progress lifecycle status (SUBMITTED/DRAFT)
// is kept, and an open chapter that already has content surfaces as DRAFT so
// untouched and drafted chapters stay distinguishable.
func ResolveChapterStatus(chapter models.ChapterRecord, match ScheduleMatch, fallback Window, now time.Time) models.ChapterStatus {
	if chapter.Status.Decided() {
		return chapter.Status
	}

	open := resolveWindowOpen(match, fallback, now)
	if !open {
		return models.ChapterLocked
	}

	if chapter.Status.InProgress() {
		return chapter.Status
	}
	if chapter.HasContent() {
		return models.ChapterDraft
	}
	return models.ChapterOpen
}

func resolveWindowOpen(match ScheduleMatch, fallback Window, now time.Time) bool {
	if match.Found() {
		schedule := match.Schedule
		if schedule.ForceClosed() {
			return false
		}
		if schedule.HasWindow() {
			return Window{Start: schedule.OpensAt, End: schedule.ClosesAt}.Contains(now)
		}
	}

	if fallback.Defined() {
		return fallback.Contains(now)
	}

	// No schedule and no assignment window: absence of a time constraint
	// must not strand the student.
	return true
}

// FinalSubmissionUnlocked is the paper-level aggregate gate: every chapter
// approved, recomputed from the chapter array on every read. Zero chapters
// never unlock final submission.
func FinalSubmissionUnlocked(chapters []models.ChapterRecord) bool {
	if len(chapters) == 0 {
		return false
	}
	for _, chapter := range chapters {
		if chapter.Status != models.ChapterApproved {
			return false
		}
	}
	return true
}
