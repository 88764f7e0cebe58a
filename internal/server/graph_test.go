package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"

	"github.com/mohammad-safakhou/mosaic/internal/store"
)

func newGraphHandler(t *testing.T) (*GraphHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &GraphHandler{Store: &store.Store{DB: db}, VisibleAt: 1}, mock
}

func TestGraphStatus(t *testing.T) {
	e := echo.New()
	h, mock := newGraphHandler(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM concepts GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(store.StatusMastered, 3).
			AddRow(store.StatusStudying, 2))

	req := httptest.NewRequest(http.MethodGet, "/api/graph/status", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := h.status(ctx); err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var resp struct {
		Total    int            `json:"total"`
		Mastered int            `json:"mastered"`
		Statuses map[string]int `json:"statuses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 5 || resp.Mastered != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUpdateNodeRejectsBadStatus(t *testing.T) {
	e := echo.New()
	h, _ := newGraphHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/graph/node", strings.NewReader(`{"name":"PCA","status":"green"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	err := h.updateNode(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestUpdateNodeMissingConcept(t *testing.T) {
	e := echo.New()
	h, mock := newGraphHandler(t)

	mock.ExpectExec(`UPDATE concepts SET`).
		WithArgs("Ghost", store.StatusWeak).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest(http.MethodPost, "/api/graph/node", strings.NewReader(`{"name":"Ghost","status":"weak"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	err := h.updateNode(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestBackfillEndpoint(t *testing.T) {
	e := echo.New()
	h, mock := newGraphHandler(t)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE concepts SET`).
		WithArgs(pq.Array([]string{"Arrays", "Loops"}), at).
		WillReturnResult(sqlmock.NewResult(0, 2))

	body := `{"concepts":["Arrays","Loops"],"mastered_at":"2026-05-01T12:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/graph/backfill", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := h.backfill(ctx); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	var resp BackfillResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Updated != 2 {
		t.Fatalf("updated = %d, want 2", resp.Updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBackfillRequiresTimestamp(t *testing.T) {
	e := echo.New()
	h, _ := newGraphHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/graph/backfill", strings.NewReader(`{"concepts":["Arrays"]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	err := h.backfill(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestGraphExportColorsAndVisibility(t *testing.T) {
	e := echo.New()
	h, mock := newGraphHandler(t)

	cols := []string{"name", "kind", "difficulty", "topic_area", "parent_topic", "status", "mastered_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM concepts ORDER BY name`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("Arrays", store.KindTopic, "beginner", "DSA", "", store.StatusMastered, now, now).
			AddRow("Graphs", store.KindTopic, "intermediate", "DSA", "", store.StatusUnreached, nil, now))
	for range []int{0, 1, 2, 3, 4} {
		mock.ExpectQuery(`SELECT from_name, to_name, kind FROM concept_edges`).
			WillReturnRows(sqlmock.NewRows([]string{"from_name", "to_name", "kind"}))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/graph/export", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := h.export(ctx); err != nil {
		t.Fatalf("export: %v", err)
	}

	var resp struct {
		Nodes []struct {
			Data map[string]any `json:"data"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(resp.Nodes))
	}
	byName := map[string]map[string]any{}
	for _, n := range resp.Nodes {
		byName[n.Data["id"].(string)] = n.Data
	}
	if byName["Arrays"]["color"] != "green" || byName["Arrays"]["visible"] != true {
		t.Fatalf("Arrays node = %+v", byName["Arrays"])
	}
	if byName["Graphs"]["color"] != "grey" || byName["Graphs"]["visible"] != false {
		t.Fatalf("Graphs node = %+v", byName["Graphs"])
	}
}
