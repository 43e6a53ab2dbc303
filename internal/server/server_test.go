package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obras/internal/lifecycle"
	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

var testNow = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	clock := lifecycle.ClockFunc(func() time.Time { return testNow })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "obras.db"), logger, sqlite.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return New(store, logger, Options{
		Location:                time.UTC,
		NeedsDataRequireStarted: true,
		Clock:                   clock,
	})
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type projectEnvelope struct {
	Project models.ProjectDetail `json:"project"`
}

type stageEnvelope struct {
	Stage models.Stage `json:"stage"`
}

type stagesEnvelope struct {
	Stages []models.Stage `json:"stages"`
}

type errorEnvelope struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func createUser(t *testing.T, srv *Server, name, email string) models.User {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/users", map[string]any{"name": name, "email": email})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		User models.User `json:"user"`
	}](t, rec).User
}

func createProject(t *testing.T, srv *Server, body map[string]any) models.ProjectDetail {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/projects", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[projectEnvelope](t, rec).Project
}

func TestHealthAndRequestID(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestUnknownAPIRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", decode[errorEnvelope](t, rec).Error)
}

func TestCreateProjectSeedsAndDerives(t *testing.T) {
	srv := newTestServer(t)
	for _, tpl := range []map[string]any{
		{"name": "Relevamiento", "estimated_duration_days": 3},
		{"name": "Planos", "estimated_duration_days": 5},
	} {
		rec := doRequest(t, srv, http.MethodPost, "/api/stage-templates", tpl)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	p := createProject(t, srv, map[string]any{"name": "Casa", "deadline": "2024-06-10"})
	require.Len(t, p.Stages, 2)
	assert.Equal(t, "due-today", p.Urgency)

	first, second := p.Stages[0], p.Stages[1]
	require.NotNil(t, first.StartDate)
	assert.True(t, testNow.Equal(*first.StartDate))
	assert.True(t, testNow.AddDate(0, 0, 3).Equal(*first.EstimatedEndDate))
	assert.Equal(t, "due-soon", first.Urgency)
	assert.True(t, first.NeedsData, "started stage without responsible needs data")

	assert.Nil(t, second.StartDate)
	assert.True(t, testNow.AddDate(0, 0, 8).Equal(*second.EstimatedEndDate))
	assert.Equal(t, "normal", second.Urgency)
	assert.False(t, second.NeedsData, "stages not started are not flagged")

	require.NotNil(t, p.CurrentStage)
	assert.Equal(t, "Relevamiento", *p.CurrentStage)

	rec := doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/stages/%d/complete", first.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/projects/%d", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[projectEnvelope](t, rec).Project
	assert.Len(t, detail.Stages, 2)
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, "Planos", *detail.CurrentStage)
	assert.Equal(t, 50.0, detail.Progress)
}

func TestStageCollectionsAlwaysPresent(t *testing.T) {
	srv := newTestServer(t)
	u := createUser(t, srv, "Sol", "sol@example.com")
	p := createProject(t, srv, map[string]any{"name": "Vacía"})

	rec := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/projects/%d", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var project struct {
		Project map[string]json.RawMessage `json:"project"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	assert.Equal(t, "null", string(project.Project["current_stage"]), "no stages means no current stage")

	rec = doRequest(t, srv, http.MethodPost, "/api/stages", map[string]any{"project_id": p.ID, "name": "Única", "responsible_id": u.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, srv, http.MethodGet, "/api/stages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Stages []map[string]json.RawMessage `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Stages, 1)
	assert.Equal(t, "[]", string(list.Stages[0]["tags"]))
	assert.Equal(t, "[]", string(list.Stages[0]["recent_comments"]))
}

func TestCreateProjectValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/projects", map[string]any{"description": "sin nombre"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is required", decode[errorEnvelope](t, rec).Fields["name"])

	rec = doRequest(t, srv, http.MethodPost, "/api/projects", map[string]any{"name": "Obra", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/projects", map[string]any{"name": "Obra", "deadline": "mañana"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/projects", map[string]any{"name": "Obra", "status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/projects", map[string]any{"name": "Obra", "client_id": 42})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(t, srv, http.MethodGet, "/api/projects/77", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProjectPartial(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "Casa", "description": "dos plantas", "deadline": "2024-07-01"})
	require.NotNil(t, p.Deadline)

	rec := doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/projects/%d", p.ID), map[string]any{"deadline": nil, "status": "paused"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[projectEnvelope](t, rec).Project
	assert.Nil(t, got.Deadline)
	assert.Equal(t, models.ProjectPaused, got.Status)
	require.NotNil(t, got.Description)
	assert.Equal(t, "dos plantas", *got.Description)

	rec = doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/projects/%d", p.ID), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStageLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)
	u := createUser(t, srv, "Luis", "luis@example.com")
	p := createProject(t, srv, map[string]any{"name": "Edificio"})

	rec := doRequest(t, srv, http.MethodPost, "/api/stages", map[string]any{"project_id": p.ID, "name": "Excavación"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is required", decode[errorEnvelope](t, rec).Fields["responsible_id"])

	rec = doRequest(t, srv, http.MethodPost, "/api/stages", map[string]any{"project_id": p.ID, "name": "Excavación", "responsible_id": u.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[stageEnvelope](t, rec).Stage
	assert.Equal(t, 1, first.OrderNumber)
	assert.Equal(t, "Luis", *first.ResponsibleName)

	rec = doRequest(t, srv, http.MethodPost, "/api/stages", map[string]any{"project_id": p.ID, "name": "Cimientos", "responsible_id": u.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[errorEnvelope](t, rec).Error, "previous stage")

	rec = doRequest(t, srv, http.MethodPost, "/api/stages", map[string]any{"project_id": 999, "name": "X", "responsible_id": u.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/stages/%d/start", first.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/stages/%d/start", first.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/stages/%d/complete", first.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[stageEnvelope](t, rec).Stage
	assert.True(t, done.IsCompleted)
	assert.Empty(t, done.Urgency, "no estimated end date means no urgency tier")

	rec = doRequest(t, srv, http.MethodPost, "/api/stages", map[string]any{"project_id": p.ID, "name": "Cimientos", "responsible_id": u.ID, "estimated_end_date": "2024-06-11"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode[stageEnvelope](t, rec).Stage
	assert.Equal(t, 2, second.OrderNumber)
	assert.Equal(t, "due-soon", second.Urgency)

	rec = doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/stages/%d/complete", second.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[stageEnvelope](t, rec).Stage.Urgency)

	rec = doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/stages/%d/uncomplete", first.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reopened := decode[stageEnvelope](t, rec).Stage
	assert.False(t, reopened.IsCompleted)
	assert.Nil(t, reopened.CompletedDate)

	rec = doRequest(t, srv, http.MethodPut, "/api/stages/reorder", map[string]any{"items": []map[string]any{
		{"id": first.ID, "order_number": 2},
		{"id": second.ID, "order_number": 1},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/stages?project_id=%d", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stages := decode[stagesEnvelope](t, rec).Stages
	require.Len(t, stages, 2)
	assert.Equal(t, second.ID, stages[0].ID)

	rec = doRequest(t, srv, http.MethodPut, "/api/stages/reorder", map[string]any{"items": []map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/users/%d", u.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStageListFiltersAndSort(t *testing.T) {
	srv := newTestServer(t)
	u := createUser(t, srv, "Marta", "marta@example.com")
	a := createProject(t, srv, map[string]any{"name": "Alfa"})
	b := createProject(t, srv, map[string]any{"name": "Beta"})

	post := func(body map[string]any) models.Stage {
		rec := doRequest(t, srv, http.MethodPost, "/api/stages", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[stageEnvelope](t, rec).Stage
	}
	post(map[string]any{"project_id": a.ID, "name": "Pintura", "responsible_id": u.ID, "start_date": "2024-06-01", "estimated_end_date": "2024-06-20"})
	late := post(map[string]any{"project_id": b.ID, "name": "Techo", "responsible_id": u.ID, "start_date": "2024-06-05"})

	rec := doRequest(t, srv, http.MethodGet, "/api/stages?needs_data=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stages := decode[stagesEnvelope](t, rec).Stages
	require.Len(t, stages, 1)
	assert.Equal(t, late.ID, stages[0].ID)

	rec = doRequest(t, srv, http.MethodGet, "/api/stages?sort=deadline", nil)
	stages = decode[stagesEnvelope](t, rec).Stages
	require.Len(t, stages, 2)
	assert.Equal(t, "Pintura", stages[0].Name)
	assert.Equal(t, "Techo", stages[1].Name)

	rec = doRequest(t, srv, http.MethodGet, "/api/stages?search=BETA", nil)
	stages = decode[stagesEnvelope](t, rec).Stages
	require.Len(t, stages, 1)
	assert.Equal(t, "Techo", stages[0].Name)

	rec = doRequest(t, srv, http.MethodGet, "/api/stages?start_date_from=2024-06-02&start_date_to=2024-06-05", nil)
	stages = decode[stagesEnvelope](t, rec).Stages
	require.Len(t, stages, 1)
	assert.Equal(t, "Techo", stages[0].Name)

	rec = doRequest(t, srv, http.MethodGet, "/api/stages?start_date_from=garbage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[stagesEnvelope](t, rec).Stages, 2)

	rec = doRequest(t, srv, http.MethodGet, "/api/stages?sort=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/users/workload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	workload := decode[struct {
		Workload []models.UserWorkload `json:"workload"`
	}](t, rec).Workload
	require.Len(t, workload, 1)
	assert.Len(t, workload[0].InProgress, 2)
}

func TestProjectListFilters(t *testing.T) {
	srv := newTestServer(t)
	createProject(t, srv, map[string]any{"name": "Hoy", "deadline": "2024-06-10"})
	createProject(t, srv, map[string]any{"name": "Vencida", "deadline": "2024-06-01"})
	createProject(t, srv, map[string]any{"name": "Sin fecha"})

	list := func(query string) []models.ProjectSummary {
		rec := doRequest(t, srv, http.MethodGet, "/api/projects"+query, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[struct {
			Projects []models.ProjectSummary `json:"projects"`
		}](t, rec).Projects
	}

	assert.Len(t, list(""), 3)

	overdue := list("?deadline=overdue")
	require.Len(t, overdue, 1)
	assert.Equal(t, "Vencida", overdue[0].Name)
	assert.Equal(t, "overdue", overdue[0].Urgency)

	byDeadline := list("?sort=deadline")
	require.Len(t, byDeadline, 3)
	assert.Equal(t, "Vencida", byDeadline[0].Name)
	assert.Equal(t, "Sin fecha", byDeadline[2].Name)

	rec := doRequest(t, srv, http.MethodGet, "/api/projects?deadline=someday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTagsAndComments(t *testing.T) {
	srv := newTestServer(t)
	p := createProject(t, srv, map[string]any{"name": "Quincho"})
	u := createUser(t, srv, "Ana", "ana@example.com")
	rec := doRequest(t, srv, http.MethodPost, "/api/stages", map[string]any{"project_id": p.ID, "name": "Parrilla", "responsible_id": u.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	st := decode[stageEnvelope](t, rec).Stage

	rec = doRequest(t, srv, http.MethodPost, "/api/tags", map[string]any{"name": "urgente", "color": "#ff0000"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tag := decode[struct {
		Tag models.Tag `json:"tag"`
	}](t, rec).Tag

	rec = doRequest(t, srv, http.MethodPost, "/api/tags", map[string]any{"name": "urgente"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := fmt.Sprintf("/api/stages/%d/tags", st.ID)
	rec = doRequest(t, srv, http.MethodPost, path, map[string]any{"tag_id": tag.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[stageEnvelope](t, rec).Stage.Tags, 1)
	rec = doRequest(t, srv, http.MethodPost, path, map[string]any{"tag_id": tag.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/stages?tag=urgente", nil)
	assert.Len(t, decode[stagesEnvelope](t, rec).Stages, 1)

	rec = doRequest(t, srv, http.MethodPost, "/api/comments", map[string]any{"stage_id": st.ID, "content": "Falta carbón", "author": "Pedro"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/stages/%d", st.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[stageEnvelope](t, rec).Stage
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "Pedro", detail.Comments[0].Author)

	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("%s/%d", path, tag.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("%s/%d", path, tag.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get: %w", sqlite.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", sqlite.ErrInvalid), http.StatusBadRequest},
		{fmt.Errorf("x: %w", sqlite.ErrConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", sqlite.ErrInUse), http.StatusConflict},
		{fmt.Errorf("x: %w", lifecycle.ErrPreviousStageIncomplete), http.StatusConflict},
		{fmt.Errorf("x: %w", lifecycle.ErrAlreadyStarted), http.StatusConflict},
		{lifecycle.ErrEmptyReorder, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
