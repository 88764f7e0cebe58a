package tutor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/mosaic/internal/graph"
	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
	"github.com/mohammad-safakhou/mosaic/provider"
)

// ErrVerdictNotPersisted marks a graded attempt whose mastery update
// or archival record failed to stick. The verdict itself is sound and
// is still returned; callers should surface a retry rather than
// pretend the progress was recorded.
var ErrVerdictNotPersisted = errors.New("verdict not persisted")

// Thresholds are the score boundaries of the decision table.
type Thresholds struct {
	Pass    int // minimum passing score
	Advance int // passing score that unlocks the next topic
}

// Decide is the pure decision table mapping a graded attempt to the
// next action:
//
//	passed, score >= Advance -> advance
//	passed otherwise         -> practice_more
//	failed                   -> re_teach
//
// A re_teach focuses on the nearest unmet prerequisite when one exists,
// else the named misconception, else the concept itself.
func Decide(ev Evaluation, attempt int, unmetPrereqs []string, concept string, th Thresholds) Feedback {
	fb := Feedback{Attempt: attempt}
	switch {
	case ev.Passed && ev.Score >= th.Advance:
		fb.Action = ActionAdvance
	case ev.Passed:
		fb.Action = ActionPracticeMore
	default:
		fb.Action = ActionReTeach
		switch {
		case len(unmetPrereqs) > 0:
			fb.FocusKind = FocusPrereq
			fb.FocusTarget = unmetPrereqs[0]
		case ev.Misconception != "":
			fb.FocusKind = FocusMisconception
			fb.FocusTarget = ev.Misconception
		default:
			fb.FocusKind = FocusConcept
			fb.FocusTarget = concept
		}
	}
	return fb
}

// Engine turns graded attempts into feedback: it derives the attempt
// number, decides the next action, persists the mastery transition, and
// writes the archival record. The mastery write is the one step that
// must not fail silently.
type Engine struct {
	provider  provider.Provider
	model     string
	memory    memory.Store
	resolver  *graph.Resolver
	mastery   *graph.Mastery
	solver    *Solver
	th        Thresholds
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

func NewEngine(p provider.Provider, model string, mem memory.Store, resolver *graph.Resolver, mastery *graph.Mastery, solver *Solver, th Thresholds, tel *telemetry.Telemetry) *Engine {
	if th.Pass <= 0 {
		th.Pass = 70
	}
	if th.Advance <= 0 {
		th.Advance = 90
	}
	return &Engine{
		provider:  p,
		model:     model,
		memory:    mem,
		resolver:  resolver,
		mastery:   mastery,
		solver:    solver,
		th:        th,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[FEEDBACK] ", log.LstdFlags),
	}
}

// GiveFeedback processes one graded attempt end to end. A store-write
// failure never blocks the verdict: the decision is composed and
// returned regardless, alongside an ErrVerdictNotPersisted the
// transport can turn into a retry signal.
func (e *Engine) GiveFeedback(ctx context.Context, studentID, concept string, ev Evaluation) (Feedback, error) {
	// Attempt number derives from the archive: one plus the prior
	// failed attempts at this concept. A failed read degrades to
	// first-attempt handling rather than blocking the verdict.
	failed, err := memory.FailedAttempts(ctx, e.memory, studentID, concept)
	if err != nil {
		e.logger.Printf("failed-attempt count unavailable, assuming first attempt: %v", err)
		failed = 0
	}
	attempt := failed + 1

	unmet := e.resolver.UnmetPrerequisitesByDistance(ctx, concept)
	fb := Decide(ev, attempt, unmet, concept, e.th)

	var writeErr error
	if _, err := e.mastery.ApplyVerdict(ctx, concept, ev.Passed, attempt, unmet); err != nil {
		writeErr = fmt.Errorf("%w: apply verdict: %v", ErrVerdictNotPersisted, err)
	}

	e.updateProfile(ctx, studentID, concept, ev.Passed, attempt)
	fb.Text = e.compose(ctx, studentID, concept, ev, fb)

	// The record is the sole input for the next attempt number, so its
	// loss is as retryable as the verdict write itself.
	if err := e.appendRecord(ctx, studentID, concept, ev, fb); err != nil && writeErr == nil {
		writeErr = fmt.Errorf("%w: append feedback record: %v", ErrVerdictNotPersisted, err)
	}
	return fb, writeErr
}

// compose produces the student-facing feedback text. A re_teach chains
// one teaching pass on the focus target and appends it, so the student
// gets the correction in the same turn.
func (e *Engine) compose(ctx context.Context, studentID, concept string, ev Evaluation, fb Feedback) string {
	nextStep := e.nextStepLine(ctx, fb, concept)

	system := fmt.Sprintf(feedbackPrompt, fmt.Sprintf(
		"Concept: %s\nScore: %d/100\nPassed: %t\nAttempt: %d\nMisconception: %s\nNext step to tell the student: %s",
		concept, ev.Score, ev.Passed, fb.Attempt, ev.Misconception, nextStep))
	text, usage, err := e.provider.Generate(ctx, system, "Write the feedback now.", provider.GenerateOptions{Model: e.model})
	e.record(usage, err)
	if err != nil {
		e.logger.Printf("feedback generation failed, using fallback text: %v", err)
		text = fallbackFeedbackText(ev.Passed, nextStep)
	}

	if fb.Action == ActionReTeach && e.solver != nil {
		lesson, lerr := e.solver.TeachBrief(ctx, studentID, fb.FocusTarget,
			fmt.Sprintf("Re-explain %s for someone who just struggled with it.", fb.FocusTarget))
		if lerr != nil {
			e.logger.Printf("re-teach pass failed: %v", lerr)
		} else {
			text += "\n\n" + lesson
		}
	}
	return text
}

func (e *Engine) nextStepLine(ctx context.Context, fb Feedback, concept string) string {
	switch fb.Action {
	case ActionAdvance:
		if next, ok := e.resolver.NextRecommendedTopic(ctx); ok {
			return fmt.Sprintf("You've mastered %s. Next up: %s.", concept, next)
		}
		return fmt.Sprintf("You've mastered %s. Pick whatever interests you next.", concept)
	case ActionPracticeMore:
		return fmt.Sprintf("You passed, but %s deserves a bit more practice before moving on.", concept)
	default:
		switch fb.FocusKind {
		case FocusPrereq:
			return fmt.Sprintf("Let's step back to %s first; it's what this builds on.", fb.FocusTarget)
		case FocusMisconception:
			return fmt.Sprintf("Let's clear up one thing: %s.", fb.FocusTarget)
		default:
			return fmt.Sprintf("Let's go through %s again from the top.", concept)
		}
	}
}

func (e *Engine) updateProfile(ctx context.Context, studentID, concept string, passed bool, attempt int) {
	var err error
	if passed {
		err = memory.RecordMastered(ctx, e.memory, studentID, concept)
	} else if attempt >= 2 {
		err = memory.RecordWeakArea(ctx, e.memory, studentID, concept)
	}
	if err != nil {
		e.logger.Printf("profile update for %s: %v", concept, err)
	}
}

func (e *Engine) appendRecord(ctx context.Context, studentID, concept string, ev Evaluation, fb Feedback) error {
	return e.memory.AppendEvent(ctx, memory.Event{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Kind:      memory.EventFeedbackGiven,
		Concept:   concept,
		Score:     ev.Score,
		Passed:    ev.Passed,
		Attempt:   fb.Attempt,
		Action:    fb.Action,
		Focus:     fb.FocusTarget,
	})
}

func (e *Engine) record(usage provider.Usage, err error) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.RecordAgentEvent(context.Background(), telemetry.AgentEvent{
		AgentType:  "feedback",
		Operation:  "compose",
		Success:    err == nil,
		TokensUsed: usage.PromptTokens + usage.CompletionTokens,
		ModelUsed:  e.model,
		Cost:       e.provider.CalculateCost(usage.PromptTokens, usage.CompletionTokens, e.model),
	})
}
