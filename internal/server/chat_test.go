package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/mosaic/config"
	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/store"
	"github.com/mohammad-safakhou/mosaic/internal/tutor"
	"github.com/mohammad-safakhou/mosaic/provider"
)

type stubProvider struct{ reply string }

func (s *stubProvider) Generate(ctx context.Context, system, user string, opts provider.GenerateOptions) (string, provider.Usage, error) {
	return s.reply, provider.Usage{}, nil
}
func (s *stubProvider) AvailableModels() []string { return []string{"stub"} }
func (s *stubProvider) ModelInfo(model string) (provider.ModelInfo, error) {
	return provider.ModelInfo{}, nil
}
func (s *stubProvider) CalculateCost(in, out int64, model string) float64 { return 0 }

type stubGraph struct {
	statuses map[string]string
}

func (s *stubGraph) GetConcept(ctx context.Context, name string) (store.Concept, bool, error) {
	if name == "Recursion" {
		return store.Concept{Name: name, Kind: store.KindTopic, Status: store.StatusStudying}, true, nil
	}
	return store.Concept{}, false, nil
}
func (s *stubGraph) ListConcepts(ctx context.Context) ([]store.Concept, error) {
	return []store.Concept{{Name: "Recursion", Kind: store.KindTopic, Status: store.StatusStudying}}, nil
}
func (s *stubGraph) ListEdges(ctx context.Context, kind string) ([]store.Edge, error) {
	return nil, nil
}
func (s *stubGraph) DirectPrerequisites(ctx context.Context, name string) ([]store.Concept, error) {
	return nil, nil
}
func (s *stubGraph) PrerequisitesWithin(ctx context.Context, name string, maxDepth int) ([]store.Concept, error) {
	return nil, nil
}
func (s *stubGraph) PrerequisiteChain(ctx context.Context, name string, maxDepth int) ([]store.ChainEntry, error) {
	return nil, nil
}
func (s *stubGraph) RelatedConcepts(ctx context.Context, name string, limit int) ([]store.Concept, error) {
	return nil, nil
}
func (s *stubGraph) StatusCounts(ctx context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}
func (s *stubGraph) SetStatus(ctx context.Context, name, status string) error {
	s.statuses[name] = status
	return nil
}
func (s *stubGraph) BulkBackfill(ctx context.Context, names []string, masteredAt time.Time) (int64, error) {
	return 0, nil
}

func newTutorHandler(reply string) *TutorHandler {
	cfg := &config.Config{}
	cfg.LLM.Routing = config.LLMRoutingConfig{Classify: "stub", Teaching: "stub", Grading: "stub"}
	g := &stubGraph{statuses: map[string]string{}}
	orch := tutor.NewOrchestrator(cfg, &stubProvider{reply: reply}, memory.NewInMemoryStore(), g, g, nil, nil)
	return &TutorHandler{Orch: orch}
}

func TestChatRoutesTeachTurn(t *testing.T) {
	e := echo.New()
	h := newTutorHandler("Recursion is a function calling itself.")

	body := `{"session_id":"sess-1","message":"what is recursion?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "stu-1")

	if err := h.chat(ctx); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		SessionID    string `json:"session_id"`
		Capability   string `json:"capability"`
		Reply        string `json:"reply"`
		OfferPending bool   `json:"offer_pending"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.Reply == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	e := echo.New()
	h := newTutorHandler("x")

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "stu-1")

	err := h.chat(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestEvaluateRequiresConceptAndAnswer(t *testing.T) {
	e := echo.New()
	h := newTutorHandler("x")

	req := httptest.NewRequest(http.MethodPost, "/api/assessment/evaluate", strings.NewReader(`{"concept":"Recursion"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "stu-1")

	err := h.evaluate(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

// failingGraph accepts reads but rejects every status write.
type failingGraph struct{ *stubGraph }

func (g failingGraph) SetStatus(ctx context.Context, name, status string) error {
	return errors.New("db down")
}

func TestEvaluateReturnsVerdictWhenWriteFails(t *testing.T) {
	e := echo.New()
	cfg := &config.Config{}
	cfg.LLM.Routing = config.LLMRoutingConfig{Classify: "stub", Teaching: "stub", Grading: "stub"}
	g := failingGraph{&stubGraph{statuses: map[string]string{}}}
	orch := tutor.NewOrchestrator(cfg, &stubProvider{reply: `{"score": 95, "passed": true}`}, memory.NewInMemoryStore(), g, g, nil, nil)
	h := &TutorHandler{Orch: orch}

	body := `{"concept":"Recursion","question":"What is recursion?","answer":"A function calling itself."}`
	req := httptest.NewRequest(http.MethodPost, "/api/assessment/evaluate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "stu-1")

	if err := h.evaluate(ctx); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp struct {
		Feedback tutor.Feedback `json:"feedback"`
		Error    string         `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The decision travels in the retry response, so the student never
	// has to re-answer.
	if resp.Feedback.Action != tutor.ActionAdvance || resp.Error == "" {
		t.Fatalf("response = %+v, want advance decision plus retry error", resp)
	}
}

func TestQuestionEndpointFallsBackToFixedQuestion(t *testing.T) {
	e := echo.New()
	// Stub never returns JSON, so the fixed fallback question comes
	// back instead of an error.
	h := newTutorHandler("no json here")

	req := httptest.NewRequest(http.MethodPost, "/api/assessment/question", strings.NewReader(`{"concept":"Recursion"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "stu-1")

	if err := h.question(ctx); err != nil {
		t.Fatalf("question: %v", err)
	}
	var q tutor.Question
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(q.Text, "Explain Recursion in your own words") {
		t.Fatalf("unexpected question: %+v", q)
	}
}
