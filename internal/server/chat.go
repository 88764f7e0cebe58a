package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/mosaic/internal/tutor"
)

// TutorHandler exposes the conversational and assessment endpoints.
type TutorHandler struct {
	Orch *tutor.Orchestrator
}

func (h *TutorHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
	g.POST("/assessment/question", h.question)
	g.POST("/assessment/evaluate", h.evaluate)
}

func (h *TutorHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	resp, err := h.Orch.HandleTurn(c.Request().Context(), tutor.TurnRequest{
		StudentID: c.Get("user_id").(string),
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session_id":    req.SessionID,
		"capability":    resp.Capability,
		"concept":       resp.Concept,
		"reply":         resp.Reply,
		"offer_pending": resp.OfferPending,
	})
}

func (h *TutorHandler) question(c echo.Context) error {
	var req QuestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q, err := h.Orch.GenerateQuestion(c.Request().Context(), c.Get("user_id").(string), req.Concept)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, q)
}

func (h *TutorHandler) evaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Concept == "" || req.Answer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "concept and answer required")
	}

	ev, fb, err := h.Orch.EvaluateAndGiveFeedback(c.Request().Context(), c.Get("user_id").(string), req.Concept, req.Question, req.Answer, req.ExpectedPoints)
	if err != nil {
		// The answer was graded but progress didn't stick; return the
		// verdict anyway and tell the client to retry rather than
		// re-answer.
		if errors.Is(err, tutor.ErrVerdictNotPersisted) {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"evaluation": ev,
				"feedback":   fb,
				"error":      "verdict not saved, please retry",
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"evaluation": ev,
		"feedback":   fb,
	})
}
