package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
)

type lockerStub struct {
	locked bool
}

func (l *lockerStub) IsLocked(ctx context.Context, studentID uint) (bool, error) {
	return l.locked, nil
}

func seedPaper(t *testing.T, repo *memoryPaperRepo, chapters []models.ChapterRecord, assignment models.Assignment) models.Paper {
	t.Helper()

	paper := models.Paper{
		AssignmentID:    assignment.ID,
		StudentID:       3,
		Title:           assignment.Title,
		TargetWordCount: 500,
		FinalStatus:     models.FinalStatusNone,
		IntegrityStatus: models.IntegrityPending,
		Assignment:      assignment,
	}
	paper.SetChapters(chapters)
	require.NoError(t, repo.Create(context.Background(), &paper))
	return paper
}

func newPaperServiceForTest(papers *memoryPaperRepo, users *memoryUserRepo, locker ViolationLocker, events EventPublisher) PaperService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewPaperService(papers, users, validate, locker, nil, events, 90, testLogger())
}

func advisedStudent() models.User {
	advisorID := uint(7)
	return models.User{ID: 3, Name: "Student", Role: models.RoleStudent, AdvisorID: &advisorID}
}

func TestSaveChapterDraftSetsDraftStatus(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", MinWords: 5, Status: models.ChapterOpen},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.SaveChapterDraft(context.Background(), paper.ID, 0, dto.SaveDraftRequest{Content: "one two three four five six"}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, models.ChapterDraft, resp.Chapters[0].Status)
	require.Equal(t, 6, resp.Chapters[0].WordCount)
	require.Equal(t, 6, resp.WordCount)
}

func TestSaveChapterDraftSanitizesContent(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", MinWords: 1, Status: models.ChapterOpen},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.SaveChapterDraft(context.Background(), paper.ID, 0, dto.SaveDraftRequest{Content: `<p>hello</p><script>alert("x")</script>`}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.NotContains(t, resp.Chapters[0].Content, "script")
	require.Contains(t, resp.Chapters[0].Content, "hello")
	require.Equal(t, 1, resp.Chapters[0].WordCount)
}

func TestSaveChapterDraftRejectsOtherStudent(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Status: models.ChapterOpen},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.SaveChapterDraft(context.Background(), paper.ID, 0, dto.SaveDraftRequest{Content: "text"}, ActivityActor{ID: 99, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrNotPaperOwner)
}

func TestSaveChapterDraftClosedWindowLocks(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	past := time.Now().Add(-48 * time.Hour)
	closed := time.Now().Add(-24 * time.Hour)
	assignment := models.Assignment{
		ID:    1,
		Title: "Thesis",
		Schedules: []models.ChapterSchedule{
			{AssignmentID: 1, Title: "Introduction", ChapterKey: "introduction", OpensAt: &past, ClosesAt: &closed},
		},
	}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Status: models.ChapterOpen},
	}, assignment)

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.SaveChapterDraft(context.Background(), paper.ID, 0, dto.SaveDraftRequest{Content: "late"}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrChapterLocked)
}

func TestSaveChapterDraftApprovedIsImmutable(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "done", WordCount: 1, Status: models.ChapterApproved},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.SaveChapterDraft(context.Background(), paper.ID, 0, dto.SaveDraftRequest{Content: "rewrite"}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrChapterImmutable)
}

func TestSaveChapterDraftSubmittedRequiresWithdraw(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.SaveChapterDraft(context.Background(), paper.ID, 0, dto.SaveDraftRequest{Content: "edit"}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrChapterSubmitted)
}

func TestSaveChapterDraftViolationLock(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Status: models.ChapterOpen},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{locked: true}, nil)

	_, err := svc.SaveChapterDraft(context.Background(), paper.ID, 0, dto.SaveDraftRequest{Content: "text"}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrStudentLocked)
}

func TestSubmitChapterBelowMinimumWords(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "too short", WordCount: 2, MinWords: 300, Status: models.ChapterDraft},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.SubmitChapter(context.Background(), paper.ID, 0, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.Error(t, err)
	require.Contains(t, err.Error(), "need 300, have 2")
}

func TestSubmitChapterWithoutAdvisorFails(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{{ID: 3, Name: "Orphan", Role: models.RoleStudent}}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: strings.Repeat("word ", 10), WordCount: 10, MinWords: 5, Status: models.ChapterDraft},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.SubmitChapter(context.Background(), paper.ID, 0, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrAdvisorRequired)
}

func TestSubmitChapterPublishesEvent(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	events := &publisherStub{}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: strings.Repeat("word ", 10), WordCount: 10, MinWords: 5, Status: models.ChapterDraft},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, events)

	resp, err := svc.SubmitChapter(context.Background(), paper.ID, 0, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, models.ChapterSubmitted, resp.Chapters[0].Status)
	require.Len(t, events.named(EventChapterSubmitted), 1)
}

func TestWithdrawChapterReturnsToDraft(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.WithdrawChapter(context.Background(), paper.ID, 0, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, models.ChapterDraft, resp.Chapters[0].Status)
}

func TestDecideChapterRevisionRequiresFeedback(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.DecideChapter(context.Background(), paper.ID, 0, dto.DecideChapterRequest{Decision: "REVISION"}, ActivityActor{ID: 7, Role: models.RoleAdvisor})
	require.ErrorIs(t, err, ErrFeedbackRequired)
}

func TestDecideChapterAppendsHistory(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.DecideChapter(context.Background(), paper.ID, 0, dto.DecideChapterRequest{Decision: "REVISION", Feedback: "expand the motivation"}, ActivityActor{ID: 7, Role: models.RoleAdvisor})
	require.NoError(t, err)
	require.Equal(t, models.ChapterRevision, resp.Chapters[0].Status)
	require.Equal(t, "expand the motivation", resp.Chapters[0].Feedback)
	require.Len(t, resp.Chapters[0].History, 1)
	require.Equal(t, models.ChapterRevision, resp.Chapters[0].History[0].Status)
	require.Equal(t, uint(7), resp.Chapters[0].History[0].ActorID)
}

func TestDecideChapterWrongAdvisor(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.DecideChapter(context.Background(), paper.ID, 0, dto.DecideChapterRequest{Decision: "APPROVED"}, ActivityActor{ID: 8, Role: models.RoleAdvisor})
	require.ErrorIs(t, err, ErrNotPaperAdvisor)
}

func TestDecideChapterRejectsOwningStudent(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.DecideChapter(context.Background(), paper.ID, 0, dto.DecideChapterRequest{Decision: "APPROVED"}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrNotPaperAdvisor)

	stored := papers.papers[paper.ID]
	require.Equal(t, models.ChapterSubmitted, stored.ChapterList()[0].Status)
}

func TestUnapproveChapterRejectsOwningStudent(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterApproved},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.UnapproveChapter(context.Background(), paper.ID, 0, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrNotPaperAdvisor)
}

func TestDecideChapterAllowsAdmin(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.DecideChapter(context.Background(), paper.ID, 0, dto.DecideChapterRequest{Decision: "APPROVED"}, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, models.ChapterApproved, resp.Chapters[0].Status)
}

func TestDecideChapterRequiresSubmission(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "draft", WordCount: 1, Status: models.ChapterDraft},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.DecideChapter(context.Background(), paper.ID, 0, dto.DecideChapterRequest{Decision: "APPROVED"}, ActivityActor{ID: 7, Role: models.RoleAdvisor})
	require.ErrorIs(t, err, ErrNotSubmitted)
}

func TestApprovedChapterSurvivesClosedWindow(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	past := time.Now().Add(-48 * time.Hour)
	closed := time.Now().Add(-24 * time.Hour)
	assignment := models.Assignment{
		ID:    1,
		Title: "Thesis",
		Schedules: []models.ChapterSchedule{
			{AssignmentID: 1, Title: "Introduction", ChapterKey: "introduction", OpensAt: &past, ClosesAt: &closed},
		},
	}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "done", WordCount: 1, Status: models.ChapterApproved},
	}, assignment)

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.Get(context.Background(), paper.ID, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, models.ChapterApproved, resp.Chapters[0].Status)
}

func TestForceClosedWindowHidesSubmission(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	closed := false
	assignment := models.Assignment{
		ID:    1,
		Title: "Thesis",
		Schedules: []models.ChapterSchedule{
			{AssignmentID: 1, Title: "Introduction", ChapterKey: "introduction", IsOpen: &closed},
		},
	}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, assignment)

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.Get(context.Background(), paper.ID, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Equal(t, models.ChapterLocked, resp.Chapters[0].Status)
}

func TestAdminBypassSkipsTimeGating(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	closed := false
	assignment := models.Assignment{
		ID:    1,
		Title: "Thesis",
		Schedules: []models.ChapterSchedule{
			{AssignmentID: 1, Title: "Introduction", ChapterKey: "introduction", IsOpen: &closed},
		},
	}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "sent", WordCount: 1, Status: models.ChapterSubmitted},
	}, assignment)

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.Get(context.Background(), paper.ID, ActivityActor{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, models.ChapterSubmitted, resp.Chapters[0].Status)
}

func TestUnapproveChapterReopensDecision(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "done", WordCount: 1, Status: models.ChapterApproved},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.UnapproveChapter(context.Background(), paper.ID, 0, ActivityActor{ID: 7, Role: models.RoleAdvisor})
	require.NoError(t, err)
	require.Equal(t, models.ChapterSubmitted, resp.Chapters[0].Status)
	require.Len(t, resp.Chapters[0].History, 1)
}

func TestUnapproveChapterBlockedAfterFinalApproval(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "done", WordCount: 1, Status: models.ChapterApproved},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	stored := papers.papers[paper.ID]
	stored.FinalStatus = models.FinalStatusApproved
	papers.papers[paper.ID] = stored

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	_, err := svc.UnapproveChapter(context.Background(), paper.ID, 0, ActivityActor{ID: 7, Role: models.RoleAdvisor})
	require.ErrorIs(t, err, ErrFinalLocksChapter)
}

func TestListScopesStudentToOwnPapers(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	seedPaper(t, papers, []models.ChapterRecord{{Title: "Introduction", Key: "introduction", Status: models.ChapterOpen}}, models.Assignment{ID: 1, Title: "Thesis"})

	other := models.Paper{AssignmentID: 1, StudentID: 55, Title: "Thesis", FinalStatus: models.FinalStatusNone, IntegrityStatus: models.IntegrityPending}
	other.SetChapters(nil)
	require.NoError(t, papers.Create(context.Background(), &other))

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.List(context.Background(), dto.PaperFilter{}, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, resp, 1)
	require.Equal(t, uint(3), resp[0].StudentID)
}

func TestFinalGateRequiresEveryChapterApproved(t *testing.T) {
	papers := newMemoryPaperRepo()
	users := &memoryUserRepo{users: []models.User{advisedStudent()}}
	paper := seedPaper(t, papers, []models.ChapterRecord{
		{Title: "Introduction", Key: "introduction", Content: "done", WordCount: 1, Status: models.ChapterApproved},
		{Title: "Methods", Key: "methods", Content: "pending", WordCount: 1, Status: models.ChapterSubmitted},
	}, models.Assignment{ID: 1, Title: "Thesis"})

	svc := newPaperServiceForTest(papers, users, &lockerStub{}, nil)

	resp, err := svc.Get(context.Background(), paper.ID, ActivityActor{ID: 3, Role: models.RoleStudent})
	require.NoError(t, err)
	require.False(t, resp.FinalSubmissionUnlocked)
}
