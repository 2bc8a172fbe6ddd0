// Package workflow holds the pure resolution logic of the paper engine:
// flattening template structures, deriving effective chapter accessibility
// and computing the paper-level aggregate gate. Everything here is a pure
// function over immutable inputs so derived state can never diverge from its
// sources.
package workflow

import (
	"sort"
	"strings"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

// ResolveStructure flattens a template's pages into the ordered chapter list
// a new paper is seeded with, and returns the recursive target word count.
// Pages without a structure contribute nothing; a template with no qualifying
// pages yields an empty list and a zero target, which is a valid no-op.
func ResolveStructure(pages []models.TemplatePage) ([]models.ChapterRecord, int) {
	ordered := make([]models.TemplatePage, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	var chapters []models.ChapterRecord
	target := 0

	for _, page := range ordered {
		defs := page.StructureDefs()
		if len(defs) == 0 {
			continue
		}

		for _, def := range defs {
			title := strings.TrimSpace(def.Title)
			if title == "" {
				// Explicit chapter title wins, else the owning page's
				// name. A chapter is never left blank.
				title = strings.TrimSpace(page.Name)
			}

			chapters = append(chapters, models.ChapterRecord{
				Title:       title,
				Key:         models.NormalizeChapterKey(title),
				StructureID: def.StructureID,
				MinWords:    def.MinWords,
				Status:      models.ChapterOpen,
			})

			target += TargetWordCount(def)
		}
	}

	return chapters, target
}

// TargetWordCount sums minWords over a chapter and all nested subsections,
// depth unbounded.
func TargetWordCount(def models.ChapterDef) int {
	total := def.MinWords
	for _, sub := range def.Subsections {
		total += TargetWordCount(sub)
	}
	return total
}

// CountWords counts whitespace-separated words in plain text. Callers are
// expected to strip markup before counting.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
