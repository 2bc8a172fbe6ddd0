package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/scriptoria/scriptoria-api/internal/dto"
	"github.com/scriptoria/scriptoria-api/internal/handler"
	"github.com/scriptoria/scriptoria-api/internal/models"
	"github.com/scriptoria/scriptoria-api/internal/service"
)

type mockPaperService struct {
	paper      dto.PaperResponse
	err        error
	lastIndex  int
	lastActor  service.ActivityActor
	lastFilter dto.PaperFilter
}

func (m *mockPaperService) Get(_ context.Context, id uint, actor service.ActivityActor) (dto.PaperResponse, error) {
	m.lastActor = actor
	if m.err != nil {
		return dto.PaperResponse{}, m.err
	}
	return m.paper, nil
}

func (m *mockPaperService) List(_ context.Context, filter dto.PaperFilter, actor service.ActivityActor) ([]dto.PaperResponse, error) {
	m.lastFilter = filter
	m.lastActor = actor
	if m.err != nil {
		return nil, m.err
	}
	return []dto.PaperResponse{m.paper}, nil
}

func (m *mockPaperService) SaveChapterDraft(_ context.Context, _ uint, index int, _ dto.SaveDraftRequest, actor service.ActivityActor) (dto.PaperResponse, error) {
	m.lastIndex = index
	m.lastActor = actor
	if m.err != nil {
		return dto.PaperResponse{}, m.err
	}
	return m.paper, nil
}

func (m *mockPaperService) SubmitChapter(_ context.Context, _ uint, index int, actor service.ActivityActor) (dto.PaperResponse, error) {
	m.lastIndex = index
	m.lastActor = actor
	if m.err != nil {
		return dto.PaperResponse{}, m.err
	}
	return m.paper, nil
}

func (m *mockPaperService) WithdrawChapter(_ context.Context, _ uint, index int, actor service.ActivityActor) (dto.PaperResponse, error) {
	m.lastIndex = index
	m.lastActor = actor
	return m.paper, m.err
}

func (m *mockPaperService) DecideChapter(_ context.Context, _ uint, index int, _ dto.DecideChapterRequest, actor service.ActivityActor) (dto.PaperResponse, error) {
	m.lastIndex = index
	m.lastActor = actor
	if m.err != nil {
		return dto.PaperResponse{}, m.err
	}
	return m.paper, nil
}

func (m *mockPaperService) UnapproveChapter(_ context.Context, _ uint, index int, actor service.ActivityActor) (dto.PaperResponse, error) {
	m.lastIndex = index
	m.lastActor = actor
	return m.paper, m.err
}

func newPaperApp(svc service.PaperService) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(3))
		c.Locals("user_role", models.RoleStudent)
		return c.Next()
	})
	handler.NewPaperHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/papers"))
	return app
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func TestPaperHandler_GetSuccess(t *testing.T) {
	svc := &mockPaperService{paper: dto.PaperResponse{ID: 4, Title: "Thesis", StudentID: 3}}
	app := newPaperApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/4", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool              `json:"success"`
		Data    dto.PaperResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, uint(4), body.Data.ID)
	require.Equal(t, uint(3), svc.lastActor.ID)
	require.Equal(t, models.RoleStudent, svc.lastActor.Role)
}

func TestPaperHandler_ListParsesFinalStatus(t *testing.T) {
	svc := &mockPaperService{paper: dto.PaperResponse{ID: 4}}
	app := newPaperApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/papers?final_status=uploaded", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, svc.lastFilter.FinalStatus)
	require.Equal(t, "uploaded", *svc.lastFilter.FinalStatus)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/papers", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Nil(t, svc.lastFilter.FinalStatus)
}

func TestPaperHandler_SaveDraftParsesIndex(t *testing.T) {
	svc := &mockPaperService{paper: dto.PaperResponse{ID: 4}}
	app := newPaperApp(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/papers/4/chapters/2", strings.NewReader(`{"content":"draft text"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 2, svc.lastIndex)
}

func TestPaperHandler_InvalidChapterIndex(t *testing.T) {
	svc := &mockPaperService{}
	app := newPaperApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers/4/chapters/oops/submit", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPaperHandler_LockedChapterConflict(t *testing.T) {
	svc := &mockPaperService{err: service.ErrChapterLocked}
	app := newPaperApp(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/papers/4/chapters/0", strings.NewReader(`{"content":"late"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestPaperHandler_ViolationLockStatus(t *testing.T) {
	svc := &mockPaperService{err: service.ErrStudentLocked}
	app := newPaperApp(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/papers/4/chapters/0", strings.NewReader(`{"content":"text"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusLocked, resp.StatusCode)
}

func TestPaperHandler_NotFound(t *testing.T) {
	svc := &mockPaperService{err: service.ErrPaperNotFound}
	app := newPaperApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/99", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
