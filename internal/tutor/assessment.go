package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/mosaic/internal/graph"
	"github.com/mohammad-safakhou/mosaic/internal/helpers"
	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
	"github.com/mohammad-safakhou/mosaic/provider"
)

// Assessor generates questions and grades answers. Malformed model
// output never aborts a turn: question generation falls back to a fixed
// prompt, grading falls back to an ungraded zero-score verdict.
type Assessor struct {
	provider  provider.Provider
	model     string
	memory    memory.Store
	resolver  *graph.Resolver
	mastery   *graph.Mastery
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewAssessor(p provider.Provider, model string, mem memory.Store, resolver *graph.Resolver, mastery *graph.Mastery, tel *telemetry.Telemetry) *Assessor {
	return &Assessor{
		provider:  p,
		model:     model,
		memory:    mem,
		resolver:  resolver,
		mastery:   mastery,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[ASSESS] ", log.LstdFlags),
	}
}

// GenerateQuestion produces one question for the concept and moves the
// node to assessing.
func (a *Assessor) GenerateQuestion(ctx context.Context, studentID, concept string) (Question, error) {
	if concept == "" {
		return Question{}, fmt.Errorf("no concept to assess")
	}

	profile, err := memory.ProfileOrDefault(ctx, a.memory, studentID)
	if err != nil {
		a.logger.Printf("profile read failed, using defaults: %v", err)
		profile = memory.DefaultProfile(studentID)
	}
	related := a.resolver.RelatedTo(ctx, concept, 5)

	block := profileContext(profile) + conceptContext(concept, nil, nil)
	if len(related) > 0 {
		block += "Related concepts: " + joinConceptNames(related) + "\n"
	}
	system := fmt.Sprintf(questionPrompt, block)

	q := a.generate(ctx, system, concept)
	for _, r := range related {
		q.Related = append(q.Related, r.Name)
	}

	if err := a.mastery.MarkAssessing(ctx, concept); err != nil {
		a.logger.Printf("mark assessing %s: %v", concept, err)
	}
	a.appendEvent(ctx, memory.Event{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Kind:      memory.EventQuestionAsked,
		Concept:   concept,
		Question:  q.Text,
	})
	return q, nil
}

func (a *Assessor) generate(ctx context.Context, system, concept string) Question {
	out, usage, err := a.provider.Generate(ctx, system, "Write the question now.", provider.GenerateOptions{Model: a.model})
	a.record("generate_question", usage, err)
	if err != nil {
		a.logger.Printf("question generation failed, using fallback: %v", err)
		return fallbackQuestion(concept)
	}
	raw, err := helpers.ExtractJSON(out)
	if err != nil {
		a.logger.Printf("question output unparseable, using fallback: %v", err)
		return fallbackQuestion(concept)
	}
	var q Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil || q.Text == "" {
		a.logger.Printf("question JSON invalid, using fallback: %v", err)
		return fallbackQuestion(concept)
	}
	q.Concept = concept
	if q.Type == "" {
		q.Type = "conceptual"
	}
	return q
}

// Evaluate grades an answer against the question and, when supplied,
// the expected points from generation. The verdict is archived;
// applying it to the mastery graph is the feedback engine's job.
func (a *Assessor) Evaluate(ctx context.Context, studentID, concept, question, answer string, expectedPoints []string) (Evaluation, error) {
	system := fmt.Sprintf(evaluatePrompt, question, expectedPointsContext(expectedPoints), answer)
	out, usage, err := a.provider.Generate(ctx, system, "Grade the answer now.", provider.GenerateOptions{Model: a.model})
	a.record("evaluate", usage, err)

	ev := fallbackEvaluation()
	if err != nil {
		a.logger.Printf("evaluation failed, returning ungraded verdict: %v", err)
	} else if raw, jerr := helpers.ExtractJSON(out); jerr != nil {
		a.logger.Printf("evaluation output unparseable, returning ungraded verdict: %v", jerr)
	} else {
		var parsed Evaluation
		if uerr := json.Unmarshal([]byte(raw), &parsed); uerr != nil {
			a.logger.Printf("evaluation JSON invalid, returning ungraded verdict: %v", uerr)
		} else {
			if parsed.Score < 0 {
				parsed.Score = 0
			}
			if parsed.Score > 100 {
				parsed.Score = 100
			}
			ev = parsed
		}
	}

	a.appendEvent(ctx, memory.Event{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Kind:      memory.EventAssessmentResult,
		Concept:   concept,
		Question:  question,
		Answer:    answer,
		Score:     ev.Score,
		Passed:    ev.Passed,
	})
	return ev, nil
}

func (a *Assessor) appendEvent(ctx context.Context, e memory.Event) {
	if err := a.memory.AppendEvent(ctx, e); err != nil {
		a.logger.Printf("append %s event: %v", e.Kind, err)
	}
}

func (a *Assessor) record(op string, usage provider.Usage, err error) {
	if a.telemetry == nil {
		return
	}
	a.telemetry.RecordAgentEvent(context.Background(), telemetry.AgentEvent{
		AgentType:  "assessor",
		Operation:  op,
		Success:    err == nil,
		TokensUsed: usage.PromptTokens + usage.CompletionTokens,
		ModelUsed:  a.model,
		Cost:       a.provider.CalculateCost(usage.PromptTokens, usage.CompletionTokens, a.model),
	})
}
