package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/mosaic/internal/graph"
	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
	"github.com/mohammad-safakhou/mosaic/provider"
)

// Solver produces the teaching responses: short answers, full
// explanations, and comparisons. It assembles profile, prerequisite and
// retrieval context around the model call; all of that context is
// optional and degrades to nothing when a read fails.
type Solver struct {
	provider  provider.Provider
	model     string
	memory    memory.Store
	resolver  *graph.Resolver
	mastery   *graph.Mastery
	retriever Retriever
	retrieveK int
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewSolver(p provider.Provider, model string, mem memory.Store, resolver *graph.Resolver, mastery *graph.Mastery, retriever Retriever, retrieveK int, tel *telemetry.Telemetry) *Solver {
	return &Solver{
		provider:  p,
		model:     model,
		memory:    mem,
		resolver:  resolver,
		mastery:   mastery,
		retriever: retriever,
		retrieveK: retrieveK,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[SOLVER] ", log.LstdFlags),
	}
}

// Casual answers small talk without touching the graph or memory.
func (s *Solver) Casual(ctx context.Context, message string) (string, error) {
	out, usage, err := s.provider.Generate(ctx,
		"You are a friendly programming tutor. Reply briefly and warmly to this casual message. If it makes sense, nudge the student toward learning something.",
		message, provider.GenerateOptions{Model: s.model, MaxTokens: 150})
	s.record("casual", usage, err)
	if err != nil {
		return "Hey! Ready to dig into something when you are.", nil
	}
	return out, nil
}

// TeachBrief gives the short-form answer. The caller is expected to
// register the follow-up offer for the session.
func (s *Solver) TeachBrief(ctx context.Context, studentID, concept, message string) (string, error) {
	reply, err := s.teach(ctx, teachPrompt, "teach", studentID, concept, message)
	if err != nil {
		return "", err
	}
	return reply + "\n\nWant a deeper explanation?", nil
}

// ExplainFull gives the long-form structured explanation.
func (s *Solver) ExplainFull(ctx context.Context, studentID, concept, message string) (string, error) {
	return s.teach(ctx, explainPrompt, "explain", studentID, concept, message)
}

// Compare answers a comparison question. Read-only with respect to the
// graph: no status transition happens here.
func (s *Solver) Compare(ctx context.Context, studentID, message string) (string, error) {
	profile, err := memory.ProfileOrDefault(ctx, s.memory, studentID)
	if err != nil {
		s.logger.Printf("profile read failed, using defaults: %v", err)
		profile = memory.DefaultProfile(studentID)
	}
	system := fmt.Sprintf(comparisonPrompt, profileContext(profile))
	out, usage, err := s.provider.Generate(ctx, system, message, provider.GenerateOptions{Model: s.model})
	s.record("comparison", usage, err)
	if err != nil {
		return "", fmt.Errorf("comparison generation: %w", err)
	}
	return out, nil
}

func (s *Solver) teach(ctx context.Context, promptTemplate, op, studentID, concept, message string) (string, error) {
	start := time.Now()

	profile, err := memory.ProfileOrDefault(ctx, s.memory, studentID)
	if err != nil {
		s.logger.Printf("profile read failed, using defaults: %v", err)
		profile = memory.DefaultProfile(studentID)
	}

	var contextBlock strings.Builder
	contextBlock.WriteString(profileContext(profile))
	if concept != "" {
		prereqs := s.resolver.PrerequisitesOf(ctx, concept)
		unmet := s.resolver.UnmetPrerequisitesOf(ctx, concept)
		contextBlock.WriteString(conceptContext(concept, prereqs, unmet))
	}
	if s.retriever != nil {
		query := concept
		if query == "" {
			query = message
		}
		passages, err := s.retriever.Passages(ctx, query, s.retrieveK)
		if err != nil {
			s.logger.Printf("retrieval failed, continuing without passages: %v", err)
		} else {
			contextBlock.WriteString(passagesContext(passages))
		}
	}

	system := fmt.Sprintf(promptTemplate, contextBlock.String())
	out, usage, err := s.provider.Generate(ctx, system, message, provider.GenerateOptions{Model: s.model})
	s.record(op, usage, err)
	if err != nil {
		return "", fmt.Errorf("%s generation: %w", op, err)
	}

	if concept != "" {
		if err := s.mastery.MarkStudying(ctx, concept); err != nil {
			s.logger.Printf("mark studying %s: %v", concept, err)
		}
		s.appendExplanationEvent(ctx, studentID, concept, out)
	}

	s.logger.Printf("%s concept=%q took %v", op, concept, time.Since(start))
	return out, nil
}

// appendExplanationEvent archives the explanation. The archive is
// advisory context for later turns, so a failed append is logged and
// absorbed.
func (s *Solver) appendExplanationEvent(ctx context.Context, studentID, concept, text string) {
	summary := clipRunes(text, 300)
	err := s.memory.AppendEvent(ctx, memory.Event{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Kind:      memory.EventExplanationGiven,
		Concept:   concept,
		Text:      summary,
	})
	if err != nil {
		s.logger.Printf("append explanation event: %v", err)
	}
}

func (s *Solver) record(op string, usage provider.Usage, err error) {
	if s.telemetry == nil {
		return
	}
	tokens := usage.PromptTokens + usage.CompletionTokens
	s.telemetry.RecordAgentEvent(context.Background(), telemetry.AgentEvent{
		AgentType:  "solver",
		Operation:  op,
		Success:    err == nil,
		TokensUsed: tokens,
		ModelUsed:  s.model,
		Cost:       s.provider.CalculateCost(usage.PromptTokens, usage.CompletionTokens, s.model),
	})
}
