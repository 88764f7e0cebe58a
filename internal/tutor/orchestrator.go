package tutor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mohammad-safakhou/mosaic/config"
	"github.com/mohammad-safakhou/mosaic/internal/graph"
	"github.com/mohammad-safakhou/mosaic/internal/memory"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
	"github.com/mohammad-safakhou/mosaic/provider"
)

var tracer = otel.Tracer("tutor")

// Orchestrator is the decision core's front door: it routes each turn
// and dispatches to the right agent, and it runs the assessment
// lifecycle endpoints.
type Orchestrator struct {
	router      *Router
	solver      *Solver
	assessor    *Assessor
	recommender *Recommender
	engine      *Engine
	pending     *PendingStore
	resolver    *graph.Resolver
	memory      memory.Store
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewOrchestrator wires the decision core from config and shared
// infrastructure.
func NewOrchestrator(cfg *config.Config, prov provider.Provider, mem memory.Store, reader graph.Reader, writer graph.Writer, retriever Retriever, tel *telemetry.Telemetry) *Orchestrator {
	tutorCfg := cfg.Tutor.Normalize()
	routing := cfg.LLM.Routing

	resolver := graph.NewResolver(reader, tel)
	mastery := graph.NewMastery(writer, tutorCfg.WeakAttempts)
	pending := NewPendingStore(tutorCfg.PendingTTL)

	solver := NewSolver(prov, routing.Teaching, mem, resolver, mastery, retriever, cfg.Retrieval.Normalize().TopK, tel)
	assessor := NewAssessor(prov, routing.Grading, mem, resolver, mastery, tel)
	recommender := NewRecommender(prov, routing.Teaching, mem, resolver, solver, tel)
	engine := NewEngine(prov, routing.Teaching, mem, resolver, mastery, solver,
		Thresholds{Pass: tutorCfg.PassScore, Advance: tutorCfg.AdvanceScore}, tel)
	router := NewRouter(prov, routing.Classify, pending, resolver, tel)

	return &Orchestrator{
		router:      router,
		solver:      solver,
		assessor:    assessor,
		recommender: recommender,
		engine:      engine,
		pending:     pending,
		resolver:    resolver,
		memory:      mem,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// Resolver exposes the graph resolver for handlers that only read.
func (o *Orchestrator) Resolver() *graph.Resolver { return o.resolver }

// HandleTurn routes one chat message and produces the reply.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	ctx, span := tracer.Start(ctx, "tutor.handle_turn")
	defer span.End()
	start := time.Now()

	route := o.router.Route(ctx, req.SessionID, req.Message)
	span.SetAttributes(
		attribute.String("capability", string(route.Capability)),
		attribute.String("concept", route.Concept),
		attribute.Bool("from_pending", route.ResolvedFromPending),
	)

	resp := TurnResponse{Capability: route.Capability, Concept: route.Concept}
	var err error

	switch route.Capability {
	case CapCasual:
		if route.ResolvedFromPending {
			resp.Reply = "No problem. What would you like to do instead?"
		} else {
			resp.Reply, err = o.solver.Casual(ctx, req.Message)
		}
	case CapTeach:
		resp.Reply, err = o.solver.TeachBrief(ctx, req.StudentID, route.Concept, req.Message)
		if err == nil && route.Concept != "" {
			o.pending.Offer(req.SessionID, route.Concept, req.Message, CapExplain)
			resp.OfferPending = true
		}
	case CapExplain:
		msg := req.Message
		if route.RewrittenMessage != "" {
			msg = route.RewrittenMessage
		}
		resp.Reply, err = o.solver.ExplainFull(ctx, req.StudentID, route.Concept, msg)
	case CapComparison:
		resp.Reply, err = o.recommender.Handle(ctx, req.StudentID, req.Message)
	case CapAssessment:
		var q Question
		q, err = o.GenerateQuestion(ctx, req.StudentID, route.Concept)
		if err == nil {
			resp.Reply = q.Text
			resp.Concept = q.Concept
		}
	default:
		err = fmt.Errorf("unknown capability %q", route.Capability)
	}

	o.recordTurn(ctx, req, route, start, err)
	if err != nil {
		return TurnResponse{}, err
	}
	return resp, nil
}

// GenerateQuestion starts an assessment. With no concept given it falls
// back to the student's current topic.
func (o *Orchestrator) GenerateQuestion(ctx context.Context, studentID, concept string) (Question, error) {
	ctx, span := tracer.Start(ctx, "tutor.generate_question")
	defer span.End()

	if concept == "" {
		profile, err := memory.ProfileOrDefault(ctx, o.memory, studentID)
		if err == nil {
			concept = profile.CurrentTopic
		}
	}
	if concept == "" {
		return Question{}, fmt.Errorf("nothing to assess: no concept given and no current topic on file")
	}
	span.SetAttributes(attribute.String("concept", concept))
	return o.assessor.GenerateQuestion(ctx, studentID, concept)
}

// EvaluateAndGiveFeedback grades an answer and runs the feedback
// decision. An ErrVerdictNotPersisted from the engine passes through so
// the transport can signal a retryable failure.
func (o *Orchestrator) EvaluateAndGiveFeedback(ctx context.Context, studentID, concept, question, answer string, expectedPoints []string) (Evaluation, Feedback, error) {
	ctx, span := tracer.Start(ctx, "tutor.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("concept", concept))

	ev, err := o.assessor.Evaluate(ctx, studentID, concept, question, answer, expectedPoints)
	if err != nil {
		return Evaluation{}, Feedback{}, err
	}
	// The engine returns its decision even when persistence failed, so
	// both travel back to the transport together.
	fb, err := o.engine.GiveFeedback(ctx, studentID, concept, ev)
	return ev, fb, err
}

func (o *Orchestrator) recordTurn(ctx context.Context, req TurnRequest, route RouteResult, start time.Time, err error) {
	if o.telemetry == nil {
		return
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	o.telemetry.RecordTurn(ctx, telemetry.TurnEvent{
		ID:         uuid.NewString(),
		StudentID:  req.StudentID,
		Capability: string(route.Capability),
		StartTime:  start,
		EndTime:    time.Now(),
		Duration:   time.Since(start),
		Success:    err == nil,
		Error:      errText,
	})
}
