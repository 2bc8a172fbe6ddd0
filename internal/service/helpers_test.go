package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// memoryPaperRepo is an in-memory PaperRepository enforcing the unique
// (assignment, student) pair the way the database index does.
type memoryPaperRepo struct {
	papers      map[uint]models.Paper
	nextID      uint
	createErrs  map[uint]error
	updateCalls int
}

func newMemoryPaperRepo() *memoryPaperRepo {
	return &memoryPaperRepo{papers: make(map[uint]models.Paper), nextID: 1}
}

func (m *memoryPaperRepo) List(ctx context.Context, filter repository.PaperFilter) ([]models.Paper, error) {
	result := make([]models.Paper, 0, len(m.papers))
	for _, paper := range m.papers {
		if filter.AssignmentID != nil && paper.AssignmentID != *filter.AssignmentID {
			continue
		}
		if filter.StudentID != nil && paper.StudentID != *filter.StudentID {
			continue
		}
		if filter.FinalStatus != nil && paper.FinalStatus != *filter.FinalStatus {
			continue
		}
		result = append(result, paper)
	}
	return result, nil
}

func (m *memoryPaperRepo) GetByID(ctx context.Context, id uint) (models.Paper, error) {
	paper, ok := m.papers[id]
	if !ok {
		return models.Paper{}, gorm.ErrRecordNotFound
	}
	return paper, nil
}

func (m *memoryPaperRepo) ListStudentIDs(ctx context.Context, assignmentID uint) ([]uint, error) {
	ids := make([]uint, 0)
	for _, paper := range m.papers {
		if paper.AssignmentID == assignmentID {
			ids = append(ids, paper.StudentID)
		}
	}
	return ids, nil
}

func (m *memoryPaperRepo) Create(ctx context.Context, paper *models.Paper) error {
	if err, ok := m.createErrs[paper.StudentID]; ok {
		return err
	}
	for _, existing := range m.papers {
		if existing.AssignmentID == paper.AssignmentID && existing.StudentID == paper.StudentID {
			return gorm.ErrDuplicatedKey
		}
	}
	paper.ID = m.nextID
	m.nextID++
	m.papers[paper.ID] = *paper
	return nil
}

func (m *memoryPaperRepo) Update(ctx context.Context, paper *models.Paper) error {
	if _, ok := m.papers[paper.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.updateCalls++
	m.papers[paper.ID] = *paper
	return nil
}

// memoryUserRepo serves GetByID and student listings from a fixed slice.
type memoryUserRepo struct {
	users []models.User
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id uint) (models.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return models.User{}, gorm.ErrRecordNotFound
}

func (m *memoryUserRepo) ListStudents(ctx context.Context, cohortID *uint) ([]models.User, error) {
	students := make([]models.User, 0)
	for _, user := range m.users {
		if user.Role != models.RoleStudent {
			continue
		}
		if cohortID != nil && (user.CohortID == nil || *user.CohortID != *cohortID) {
			continue
		}
		students = append(students, user)
	}
	return students, nil
}

// recorderStub counts audit entries instead of persisting them.
type recorderStub struct {
	entries []ActivityEntry
}

func (r *recorderStub) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	r.entries = append(r.entries, entry)
	return dto.ActivityResponse{}, nil
}

// publisherStub collects workflow events.
type publisherStub struct {
	events []WorkflowEvent
}

func (p *publisherStub) Publish(ctx context.Context, event WorkflowEvent) {
	p.events = append(p.events, event)
}

func (p *publisherStub) named(name string) []WorkflowEvent {
	matched := make([]WorkflowEvent, 0)
	for _, event := range p.events {
		if event.Name == name {
			matched = append(matched, event)
		}
	}
	return matched
}

// uploaderStub pretends to store a file and returns a stable URL.
type uploaderStub struct {
	uploads int
	failErr error
}

func (u *uploaderStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if u.failErr != nil {
		return "", u.failErr
	}
	u.uploads++
	return "https://files.test/" + name, nil
}

// extractorStub returns the raw bytes as the extracted text.
type extractorStub struct{}

func (extractorStub) Extract(name string, reader io.Reader) (string, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	reader := multipart.NewReader(&buf, writer.Boundary())
	form, err := reader.ReadForm(10 << 20)
	if err != nil {
		t.Fatalf("failed to read form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File["file"]
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	return files[0]
}
