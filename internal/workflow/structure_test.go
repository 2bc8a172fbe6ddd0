package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

func page(name string, position int, defs ...models.ChapterDef) models.TemplatePage {
	p := models.TemplatePage{Name: name, Position: position}
	if len(defs) > 0 {
		p.SetStructure(defs)
	}
	return p
}

func TestResolveStructureFlattensPagesInOrder(t *testing.T) {
	pages := []models.TemplatePage{
		page("Closing", 3, models.ChapterDef{Title: "Conclusion", MinWords: 300}),
		page("Opening", 1,
			models.ChapterDef{Title: "Introduction", MinWords: 500},
			models.ChapterDef{Title: "Literature Review", MinWords: 800},
		),
		page("Body", 2, models.ChapterDef{Title: "Methodology", MinWords: 700}),
		page("Appendix", 4),
	}

	chapters, target := ResolveStructure(pages)

	require.Len(t, chapters, 4)
	require.Equal(t, "Introduction", chapters[0].Title)
	require.Equal(t, "Literature Review", chapters[1].Title)
	require.Equal(t, "Methodology", chapters[2].Title)
	require.Equal(t, "Conclusion", chapters[3].Title)
	require.Equal(t, 2300, target)

	for _, chapter := range chapters {
		require.Equal(t, models.ChapterOpen, chapter.Status)
		require.Equal(t, models.NormalizeChapterKey(chapter.Title), chapter.Key)
	}
}

func TestResolveStructureInheritsPageName(t *testing.T) {
	pages := []models.TemplatePage{
		page("Background", 1, models.ChapterDef{MinWords: 400}),
	}

	chapters, _ := ResolveStructure(pages)

	require.Len(t, chapters, 1)
	require.Equal(t, "Background", chapters[0].Title)
	require.Equal(t, "background", chapters[0].Key)
}

func TestResolveStructureEmptyTemplate(t *testing.T) {
	chapters, target := ResolveStructure([]models.TemplatePage{page("Cover", 1)})

	require.Empty(t, chapters)
	require.Zero(t, target)
}

func TestTargetWordCountRecursesThreeLevels(t *testing.T) {
	def := models.ChapterDef{
		Title:    "Analysis",
		MinWords: 1000,
		Subsections: []models.ChapterDef{
			{Title: "Data", MinWords: 200},
			{
				Title:    "Discussion",
				MinWords: 300,
				Subsections: []models.ChapterDef{
					{Title: "Limitations", MinWords: 150},
				},
			},
		},
	}

	require.Equal(t, 1650, TargetWordCount(def))

	pages := []models.TemplatePage{page("Body", 1, def)}
	chapters, target := ResolveStructure(pages)
	require.Len(t, chapters, 1)
	require.Equal(t, 1650, target)
}

func TestCountWords(t *testing.T) {
	require.Zero(t, CountWords(""))
	require.Zero(t, CountWords("   \n\t"))
	require.Equal(t, 5, CountWords("one two  three\nfour\tfive"))
}
