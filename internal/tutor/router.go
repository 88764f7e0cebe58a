package tutor

import (
	"context"
	"log"
	"strings"

	"github.com/mohammad-safakhou/mosaic/internal/graph"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
	"github.com/mohammad-safakhou/mosaic/provider"
)

// Rule-layer phrase sets. These run before any model call; the LLM
// classifier is a last resort, and its failure routes to teach, never
// to assessment.
var (
	assessmentPhrases = []string{
		"test me", "quiz me", "assess me", "give me a question", "practice question",
	}
	casualOpeners = []string{
		"hi", "hello", "hey", "yo", "sup", "thanks", "thank you", "good morning",
		"good afternoon", "good evening", "how are you", "what's up", "whats up",
	}
	comparisonMarkers = []string{
		"difference between", "compare", " vs ", " vs. ", "versus", "which is better",
		"pros and cons",
	}
	explainMarkers = []string{
		"explain in detail", "in depth", "deep dive", "walk me through", "full explanation",
	}
	affirmatives = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true,
		"please": true, "yes please": true, "go ahead": true, "definitely": true, "y": true,
	}
	negatives = map[string]bool{
		"no": true, "nope": true, "nah": true, "no thanks": true, "not now": true,
		"later": true, "im good": true, "i'm good": true, "n": true,
	}
	interrogatives = map[string]bool{
		"what": true, "why": true, "how": true, "when": true, "where": true,
		"which": true, "who": true, "can": true, "could": true, "does": true,
		"do": true, "is": true, "are": true, "explain": true, "teach": true,
	}
)

// Router decides which capability handles a turn. Rule layers run in a
// fixed order; only messages that escape every rule reach the LLM
// classifier.
type Router struct {
	provider      provider.Provider
	classifyModel string
	pending       *PendingStore
	resolver      *graph.Resolver
	telemetry     *telemetry.Telemetry
	logger        *log.Logger
}

func NewRouter(p provider.Provider, classifyModel string, pending *PendingStore, resolver *graph.Resolver, tel *telemetry.Telemetry) *Router {
	return &Router{
		provider:      p,
		classifyModel: classifyModel,
		pending:       pending,
		resolver:      resolver,
		telemetry:     tel,
		logger:        log.New(log.Writer(), "[ROUTER] ", log.LstdFlags),
	}
}

// Route classifies one turn. It never returns an error: every failure
// mode collapses into a safe capability.
func (r *Router) Route(ctx context.Context, sessionID, message string) RouteResult {
	msg := strings.TrimSpace(message)
	lower := strings.ToLower(msg)

	// Explicit assessment requests win over everything, including an
	// open follow-up offer, which they discard.
	for _, phrase := range assessmentPhrases {
		if strings.Contains(lower, phrase) {
			r.pending.Clear(sessionID)
			return RouteResult{
				Capability: CapAssessment,
				Concept:    r.extractConcept(ctx, msg),
			}
		}
	}

	// An open offer intercepts the turn next.
	if pf, ok := r.pending.Peek(sessionID); ok {
		switch r.classifyFollowup(ctx, lower) {
		case "yes":
			r.pending.Resolve(sessionID)
			return RouteResult{
				Capability:          pf.Target,
				Concept:             pf.Concept,
				RewrittenMessage:    pf.Message,
				ResolvedFromPending: true,
			}
		case "no":
			r.pending.Clear(sessionID)
			return RouteResult{Capability: CapCasual, ResolvedFromPending: true}
		case followupNewQuestion:
			r.pending.Clear(sessionID)
		default:
			// Ambiguous reply: the offer stays live for the next turn.
		}
	}

	if r.isCasual(lower) {
		return RouteResult{Capability: CapCasual}
	}

	for _, m := range comparisonMarkers {
		if strings.Contains(lower, m) {
			return RouteResult{Capability: CapComparison, Concept: r.extractConcept(ctx, msg)}
		}
	}

	for _, m := range explainMarkers {
		if strings.Contains(lower, m) {
			return RouteResult{Capability: CapExplain, Concept: r.extractConcept(ctx, msg)}
		}
	}

	capability := r.classify(ctx, msg)
	result := RouteResult{Capability: capability, UsedClassifier: true}
	if capability != CapCasual {
		result.Concept = r.extractConcept(ctx, msg)
	}
	return result
}

// extractConcept names the concept a message is about. A curriculum
// match settles it without a model call; otherwise the model answers
// with a name or NONE, and on failure the message itself, clipped to
// 60 runes, stands in so downstream prompts still have a subject.
func (r *Router) extractConcept(ctx context.Context, msg string) string {
	if name := r.resolver.MapFreeTextToTopic(ctx, msg); name != "" {
		return name
	}

	out, _, err := r.provider.Generate(ctx, extractConceptPrompt, msg, provider.GenerateOptions{Model: r.classifyModel, MaxTokens: 16})
	if err != nil {
		r.logger.Printf("concept extraction failed, clipping message: %v", err)
		return clipRunes(msg, 60)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return clipRunes(msg, 60)
	}
	if strings.EqualFold(out, "NONE") {
		return ""
	}
	return clipRunes(out, 60)
}

func clipRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

const (
	followupNewQuestion = "new_question"
	followupAmbiguous   = "ambiguous"
)

// classifyFollowup decides whether a reply under an open offer is an
// acceptance, a decline, a new question, or too ambiguous to call.
// Exact word sets settle the common replies; the model handles phrasing
// like "sure why not". Only a new question abandons the offer: an
// ambiguous reply (including a model failure) leaves it open, so the
// student can still say yes on the next turn.
func (r *Router) classifyFollowup(ctx context.Context, lower string) string {
	if affirmatives[lower] {
		return "yes"
	}
	if negatives[lower] {
		return "no"
	}
	if r.looksLikeNewQuestion(lower) {
		return followupNewQuestion
	}

	out, _, err := r.provider.Generate(ctx, followupPrompt, lower, provider.GenerateOptions{Model: r.classifyModel, MaxTokens: 4})
	if err != nil {
		r.logger.Printf("followup classify failed, leaving offer open: %v", err)
		return followupAmbiguous
	}
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "yes":
		return "yes"
	case "no":
		return "no"
	default:
		return followupAmbiguous
	}
}

// looksLikeNewQuestion is the cheap heuristic for "this isn't a yes or
// no": interrogative opener or a sentence-length message.
func (r *Router) looksLikeNewQuestion(lower string) bool {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return false
	}
	if interrogatives[strings.Trim(words[0], "?,.!")] {
		return true
	}
	return len(words) > 6 || strings.Contains(lower, "?")
}

func (r *Router) isCasual(lower string) bool {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return true
	}
	if len(words) > 5 {
		return false
	}
	first := strings.Trim(words[0], "!,.")
	for _, opener := range casualOpeners {
		if first == opener || lower == opener {
			return true
		}
	}
	return false
}

// classify asks the model for a single label. Unknown labels and
// errors both land on teach: a wrong brief answer is recoverable, a
// surprise quiz is not.
func (r *Router) classify(ctx context.Context, message string) Capability {
	if r.telemetry != nil {
		r.telemetry.RecordClassifierFallback()
	}
	out, _, err := r.provider.Generate(ctx, classifyPrompt, message, provider.GenerateOptions{Model: r.classifyModel, MaxTokens: 8})
	if err != nil {
		r.logger.Printf("classifier failed, routing to teach: %v", err)
		if r.telemetry != nil {
			r.telemetry.RecordClassifierFailure()
		}
		return CapTeach
	}
	switch Capability(strings.ToLower(strings.TrimSpace(out))) {
	case CapCasual:
		return CapCasual
	case CapExplain:
		return CapExplain
	case CapComparison:
		return CapComparison
	case CapTeach:
		return CapTeach
	default:
		return CapTeach
	}
}
