package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
)

func newGradingServiceForTest(papers *memoryPaperRepo, activity ActivityRecorder, events EventPublisher) GradingService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewGradingService(papers, validate, activity, events, 90, testLogger())
}

func TestGradeRequiresApprovedFinal(t *testing.T) {
	papers := newMemoryPaperRepo()
	paper := seedPaper(t, papers, approvedChapters(), models.Assignment{ID: 1, Title: "Thesis"})

	svc := newGradingServiceForTest(papers, nil, nil)

	_, err := svc.Grade(context.Background(), paper.ID, dto.GradeRequest{Score: 85}, ActivityActor{ID: 9, Role: models.RoleExaminer})
	require.ErrorIs(t, err, ErrNotGradable)
}

func TestGradeStoresScoreAndFeedback(t *testing.T) {
	papers := newMemoryPaperRepo()
	paper := seedPaper(t, papers, approvedChapters(), models.Assignment{ID: 1, Title: "Thesis"})

	stored := papers.papers[paper.ID]
	stored.FinalStatus = models.FinalStatusApproved
	papers.papers[paper.ID] = stored

	recorder := &recorderStub{}
	events := &publisherStub{}
	svc := newGradingServiceForTest(papers, recorder, events)

	resp, err := svc.Grade(context.Background(), paper.ID, dto.GradeRequest{Score: 85, Feedback: "solid work"}, ActivityActor{ID: 9, Role: models.RoleExaminer})
	require.NoError(t, err)
	require.NotNil(t, resp.Grade)
	require.Equal(t, 85.0, *resp.Grade)
	require.Equal(t, "solid work", resp.GradeFeedback)
	require.Len(t, events.named(EventPaperGraded), 1)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, "paper_graded", recorder.entries[0].Action)
}

func TestGradeResponseKeepsIntegrityFlag(t *testing.T) {
	papers := newMemoryPaperRepo()
	paper := seedPaper(t, papers, approvedChapters(), models.Assignment{ID: 1, Title: "Thesis"})

	low := 40.0
	stored := papers.papers[paper.ID]
	stored.FinalStatus = models.FinalStatusApproved
	stored.SimilarityScore = &low
	papers.papers[paper.ID] = stored

	svc := newGradingServiceForTest(papers, nil, nil)

	resp, err := svc.Grade(context.Background(), paper.ID, dto.GradeRequest{Score: 70}, ActivityActor{ID: 9, Role: models.RoleExaminer})
	require.NoError(t, err)
	require.True(t, resp.IntegrityFlagged)
}

func TestGradeOverwritesPriorGrade(t *testing.T) {
	papers := newMemoryPaperRepo()
	paper := seedPaper(t, papers, approvedChapters(), models.Assignment{ID: 1, Title: "Thesis"})

	prior := 60.0
	stored := papers.papers[paper.ID]
	stored.FinalStatus = models.FinalStatusApproved
	stored.Grade = &prior
	stored.GradeFeedback = "needs work"
	papers.papers[paper.ID] = stored

	svc := newGradingServiceForTest(papers, nil, nil)

	resp, err := svc.Grade(context.Background(), paper.ID, dto.GradeRequest{Score: 78, Feedback: "revised fairly"}, ActivityActor{ID: 9, Role: models.RoleExaminer})
	require.NoError(t, err)
	require.Equal(t, 78.0, *resp.Grade)
	require.Equal(t, "revised fairly", resp.GradeFeedback)
}

func TestGradeRejectsOutOfRangeScore(t *testing.T) {
	papers := newMemoryPaperRepo()
	paper := seedPaper(t, papers, approvedChapters(), models.Assignment{ID: 1, Title: "Thesis"})

	stored := papers.papers[paper.ID]
	stored.FinalStatus = models.FinalStatusApproved
	papers.papers[paper.ID] = stored

	svc := newGradingServiceForTest(papers, nil, nil)

	_, err := svc.Grade(context.Background(), paper.ID, dto.GradeRequest{Score: 120}, ActivityActor{ID: 9, Role: models.RoleExaminer})
	require.Error(t, err)

	persisted := papers.papers[paper.ID]
	require.Nil(t, persisted.Grade)
}

func TestGradeUnknownPaper(t *testing.T) {
	svc := newGradingServiceForTest(newMemoryPaperRepo(), nil, nil)

	_, err := svc.Grade(context.Background(), 404, dto.GradeRequest{Score: 50}, ActivityActor{ID: 9, Role: models.RoleExaminer})
	require.ErrorIs(t, err, ErrPaperNotFound)
}
