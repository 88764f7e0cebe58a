package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/mosaic/internal/graph"
	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
	"github.com/mohammad-safakhou/mosaic/provider"
)

// Recommender handles the comparison capability's three shapes:
// comparing technologies, recommending what to study next, and
// suggesting a practice project. It reads the graph but never writes
// node statuses.
type Recommender struct {
	provider  provider.Provider
	model     string
	memory    memory.Store
	resolver  *graph.Resolver
	solver    *Solver
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewRecommender(p provider.Provider, model string, mem memory.Store, resolver *graph.Resolver, solver *Solver, tel *telemetry.Telemetry) *Recommender {
	return &Recommender{
		provider:  p,
		model:     model,
		memory:    mem,
		resolver:  resolver,
		solver:    solver,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[RECOMMEND] ", log.LstdFlags),
	}
}

var (
	recommendMarkers = []string{"what should i learn", "learn next", "what next", "recommend", "where do i go from here"}
	projectMarkers   = []string{"project", "something to build", "build something", "practice idea"}
)

// Handle dispatches on the message's shape. Unrecognized shapes default
// to a comparison, which is what the router sent it here for.
func (r *Recommender) Handle(ctx context.Context, studentID, message string) (string, error) {
	lower := strings.ToLower(message)
	mode := "compare"
	for _, m := range recommendMarkers {
		if strings.Contains(lower, m) {
			mode = "recommend"
			break
		}
	}
	if mode == "compare" {
		for _, m := range projectMarkers {
			if strings.Contains(lower, m) {
				mode = "project"
				break
			}
		}
	}

	var reply string
	var err error
	switch mode {
	case "recommend":
		reply, err = r.recommend(ctx, studentID, message)
	case "project":
		reply, err = r.project(ctx, studentID, message)
	default:
		reply, err = r.solver.Compare(ctx, studentID, message)
	}
	if err != nil {
		return "", err
	}

	r.appendEvent(ctx, studentID, mode, reply)
	return reply, nil
}

func (r *Recommender) recommend(ctx context.Context, studentID, message string) (string, error) {
	profile, perr := memory.ProfileOrDefault(ctx, r.memory, studentID)
	if perr != nil {
		r.logger.Printf("profile read failed, using defaults: %v", perr)
		profile = memory.DefaultProfile(studentID)
	}

	var summary strings.Builder
	summary.WriteString(profileContext(profile))
	if next, ok := r.resolver.NextRecommendedTopic(ctx); ok {
		fmt.Fprintf(&summary, "Graph suggests next: %s\n", next)
		if path := r.resolver.LearningPath(ctx, next); len(path) > 1 {
			names := make([]string, 0, len(path))
			for _, c := range path {
				names = append(names, c.Name)
			}
			fmt.Fprintf(&summary, "Path to it: %s\n", strings.Join(names, " -> "))
		}
	} else {
		summary.WriteString("Graph has no clear next topic; everything reachable is mastered or blocked.\n")
	}

	out, usage, err := r.provider.Generate(ctx, fmt.Sprintf(recommendPrompt, summary.String()), message, provider.GenerateOptions{Model: r.model})
	r.record("recommend", usage, err)
	if err != nil {
		return "", fmt.Errorf("recommendation generation: %w", err)
	}
	return out, nil
}

func (r *Recommender) project(ctx context.Context, studentID, message string) (string, error) {
	profile, perr := memory.ProfileOrDefault(ctx, r.memory, studentID)
	if perr != nil {
		profile = memory.DefaultProfile(studentID)
	}
	system := fmt.Sprintf(recommendPrompt, profileContext(profile)+
		"The student wants a small practice project exercising what they've mastered. Suggest one with a concrete first step.\n")
	out, usage, err := r.provider.Generate(ctx, system, message, provider.GenerateOptions{Model: r.model})
	r.record("project", usage, err)
	if err != nil {
		return "", fmt.Errorf("project suggestion: %w", err)
	}
	return out, nil
}

func (r *Recommender) appendEvent(ctx context.Context, studentID, mode, text string) {
	text = clipRunes(text, 300)
	err := r.memory.AppendEvent(ctx, memory.Event{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Kind:      memory.EventRecommendationGiven,
		Mode:      mode,
		Text:      text,
	})
	if err != nil {
		r.logger.Printf("append recommendation event: %v", err)
	}
}

func (r *Recommender) record(op string, usage provider.Usage, err error) {
	if r.telemetry == nil {
		return
	}
	r.telemetry.RecordAgentEvent(context.Background(), telemetry.AgentEvent{
		AgentType:  "recommender",
		Operation:  op,
		Success:    err == nil,
		TokensUsed: usage.PromptTokens + usage.CompletionTokens,
		ModelUsed:  r.model,
		Cost:       r.provider.CalculateCost(usage.PromptTokens, usage.CompletionTokens, r.model),
	})
}
