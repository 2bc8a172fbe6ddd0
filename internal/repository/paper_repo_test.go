package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/models"
)

func TestPaperRepositoryDuplicateAssignmentStudentRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaperRepository(db)

	first := models.Paper{AssignmentID: 1, StudentID: 5, Title: "Thesis"}
	require.NoError(t, repo.Create(context.Background(), &first))

	duplicate := models.Paper{AssignmentID: 1, StudentID: 5, Title: "Thesis again"}
	err := repo.Create(context.Background(), &duplicate)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	sibling := models.Paper{AssignmentID: 1, StudentID: 6, Title: "Thesis"}
	require.NoError(t, repo.Create(context.Background(), &sibling))
}

func TestPaperRepositoryListFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaperRepository(db)

	advisorID := uint(7)
	advised := models.User{Name: "Nina", Email: "nina@example.com", Role: models.RoleStudent, AdvisorID: &advisorID}
	other := models.User{Name: "Omar", Email: "omar@example.com", Role: models.RoleStudent}
	require.NoError(t, db.Create(&advised).Error)
	require.NoError(t, db.Create(&other).Error)

	require.NoError(t, db.Create(&models.Paper{AssignmentID: 1, StudentID: advised.ID, Title: "A", FinalStatus: models.FinalStatusUploaded}).Error)
	require.NoError(t, db.Create(&models.Paper{AssignmentID: 1, StudentID: other.ID, Title: "B", FinalStatus: models.FinalStatusNone}).Error)
	require.NoError(t, db.Create(&models.Paper{AssignmentID: 2, StudentID: other.ID, Title: "C", FinalStatus: models.FinalStatusNone}).Error)

	assignmentID := uint(1)
	papers, err := repo.List(context.Background(), PaperFilter{AssignmentID: &assignmentID})
	require.NoError(t, err)
	require.Len(t, papers, 2)

	papers, err = repo.List(context.Background(), PaperFilter{AdvisorID: &advisorID})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	require.Equal(t, advised.ID, papers[0].StudentID)

	uploaded := models.FinalStatusUploaded
	papers, err = repo.List(context.Background(), PaperFilter{FinalStatus: &uploaded})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	require.Equal(t, "A", papers[0].Title)
}

func TestPaperRepositoryListStudentIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaperRepository(db)

	require.NoError(t, db.Create(&models.Paper{AssignmentID: 3, StudentID: 11, Title: "A"}).Error)
	require.NoError(t, db.Create(&models.Paper{AssignmentID: 3, StudentID: 12, Title: "B"}).Error)
	require.NoError(t, db.Create(&models.Paper{AssignmentID: 4, StudentID: 13, Title: "C"}).Error)

	ids, err := repo.ListStudentIDs(context.Background(), 3)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{11, 12}, ids)
}

func TestPaperRepositoryUpdateKeepsChapterState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaperRepository(db)

	paper := models.Paper{AssignmentID: 1, StudentID: 5, Title: "Thesis"}
	paper.SetChapters([]models.ChapterRecord{{Title: "Intro", Status: models.ChapterOpen}})
	require.NoError(t, repo.Create(context.Background(), &paper))

	chapters := paper.ChapterList()
	chapters[0].Status = models.ChapterDraft
	chapters[0].Content = "first words"
	paper.SetChapters(chapters)
	require.NoError(t, repo.Update(context.Background(), &paper))

	stored, err := repo.GetByID(context.Background(), paper.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChapterDraft, stored.ChapterList()[0].Status)
	require.Equal(t, "first words", stored.ChapterList()[0].Content)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Cohort{},
		&models.Template{},
		&models.TemplatePage{},
		&models.Assignment{},
		&models.ChapterSchedule{},
		&models.Paper{},
		&models.Violation{},
		&models.IntegrityProfile{},
		&models.ActivityLog{},
	))
	return db
}
