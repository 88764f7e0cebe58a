package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/store"
)

// statusColors is the presentation mapping for graph exports. Colors
// exist only at this boundary; nothing below the handlers stores or
// reasons about them.
var statusColors = map[string]string{
	store.StatusMastered:  "green",
	store.StatusWeak:      "red",
	store.StatusPrereqGap: "orange",
	store.StatusAssessing: "yellow",
	store.StatusUnreached: "grey",
	store.StatusStudying:  "blue",
}

// GraphHandler exposes the curriculum graph endpoints.
type GraphHandler struct {
	Store     *store.Store
	VisibleAt int
}

func (h *GraphHandler) Register(g *echo.Group) {
	g.GET("/status", h.status)
	g.GET("/export", h.export)
	g.POST("/node", h.updateNode)
	g.POST("/backfill", h.backfill)
}

func (h *GraphHandler) status(c echo.Context) error {
	counts, err := h.Store.StatusCounts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total":    total,
		"mastered": counts[store.StatusMastered],
		"statuses": counts,
	})
}

// export renders the graph for visualization, attaching colors and a
// visibility flag. With a tiny graph everything is shown; otherwise
// unreached nodes stay hidden until the student gets near them.
func (h *GraphHandler) export(c echo.Context) error {
	ctx := c.Request().Context()
	concepts, err := h.Store.ListConcepts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	showAll := len(concepts) <= h.VisibleAt
	nodes := make([]map[string]any, 0, len(concepts))
	for _, cn := range concepts {
		color, ok := statusColors[cn.Status]
		if !ok {
			color = "grey"
		}
		nodes = append(nodes, map[string]any{"data": map[string]any{
			"id":         cn.Name,
			"label":      cn.Name,
			"kind":       cn.Kind,
			"difficulty": cn.Difficulty,
			"topic_area": cn.TopicArea,
			"status":     cn.Status,
			"color":      color,
			"visible":    showAll || cn.Status != store.StatusUnreached,
		}})
	}

	edges := make([]map[string]any, 0)
	for _, kind := range []string{store.EdgeRequires, store.EdgeBuildsOn, store.EdgePartOf, store.EdgeUsedIn, store.EdgeRelatedTo} {
		es, err := h.Store.ListEdges(ctx, kind)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		for _, e := range es {
			edges = append(edges, map[string]any{"data": map[string]any{
				"source": e.FromName,
				"target": e.ToName,
				"kind":   e.Kind,
			}})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes, "edges": edges})
}

func (h *GraphHandler) updateNode(c echo.Context) error {
	var req NodeUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" || !store.ValidStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "name and a valid status required")
	}
	if err := h.Store.SetStatus(c.Request().Context(), req.Name, req.Status); err != nil {
		if errors.Is(err, store.ErrConceptNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *GraphHandler) backfill(c echo.Context) error {
	var req BackfillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Concepts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "concepts required")
	}
	if req.MasteredAt.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "mastered_at required")
	}
	n, err := h.Store.BulkBackfill(c.Request().Context(), req.Concepts, req.MasteredAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, BackfillResponse{Updated: n})
}

// ProgressHandler reports one student's profile and recent activity.
type ProgressHandler struct {
	Store  *store.Store
	Memory memory.Store
	Window int
}

func (h *ProgressHandler) Register(g *echo.Group) {
	g.GET("", h.progress)
}

func (h *ProgressHandler) progress(c echo.Context) error {
	ctx := c.Request().Context()
	studentID := c.Get("user_id").(string)

	profile, err := memory.ProfileOrDefault(ctx, h.Memory, studentID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	events, err := h.Memory.RecentEvents(ctx, studentID, h.Window)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	counts, err := h.Store.StatusCounts(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"profile":       profile,
		"recent_events": events,
		"graph":         counts,
	})
}
