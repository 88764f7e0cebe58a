package tutor

import (
	"context"
	"time"
)

// Capability is the conversational mode a turn is routed to.
type Capability string

const (
	CapCasual     Capability = "casual"
	CapTeach      Capability = "teach"   // short answer with a follow-up offer
	CapExplain    Capability = "explain" // full structured explanation
	CapComparison Capability = "comparison"
	CapAssessment Capability = "assessment"
)

// Next actions the feedback engine can direct after grading.
const (
	ActionAdvance      = "advance"
	ActionPracticeMore = "practice_more"
	ActionReTeach      = "re_teach"
)

// Focus kinds for a re_teach action, in priority order.
const (
	FocusPrereq        = "prereq"
	FocusMisconception = "misconception"
	FocusConcept       = "concept"
)

// TurnRequest is one student message entering the decision core.
type TurnRequest struct {
	StudentID string
	SessionID string
	Message   string
}

// TurnResponse is what the student gets back plus routing metadata.
type TurnResponse struct {
	Capability   Capability `json:"capability"`
	Concept      string     `json:"concept,omitempty"`
	Reply        string     `json:"reply"`
	OfferPending bool       `json:"offer_pending,omitempty"`
}

// RouteResult is the router's verdict for a turn. RewrittenMessage is
// set when an elliptical "yes" resolved against a pending offer: it
// carries the question that earned the offer, so the answering agent
// sees the real subject instead of the bare affirmation.
type RouteResult struct {
	Capability          Capability
	Concept             string
	RewrittenMessage    string
	ResolvedFromPending bool
	UsedClassifier      bool
}

// PendingFollowup is the open yes/no offer a teach turn leaves behind.
// It lives in the session store until resolved, replaced, or expired.
type PendingFollowup struct {
	Concept   string
	Message   string     // the question that triggered the brief answer
	Target    Capability // capability an acceptance resolves to
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Question is a generated assessment question.
type Question struct {
	Concept        string   `json:"concept"`
	Text           string   `json:"question"`
	Type           string   `json:"type"`
	Related        []string `json:"related_concepts,omitempty"`
	ExpectedPoints []string `json:"expected_points,omitempty"`
}

// Evaluation is the graded verdict for one answer. Ungraded marks the
// fallback produced when the grader's output could not be parsed; it
// never counts as a pass.
type Evaluation struct {
	Score         int    `json:"score"`
	Passed        bool   `json:"passed"`
	Misconception string `json:"misconception,omitempty"`
	Ungraded      bool   `json:"ungraded,omitempty"`
}

// Feedback is the decision engine's output for a graded attempt.
type Feedback struct {
	Action      string `json:"action"`
	FocusKind   string `json:"focus_kind,omitempty"`
	FocusTarget string `json:"focus_target,omitempty"`
	Attempt     int    `json:"attempt"`
	Text        string `json:"text"`
}

// Retriever fetches supporting passages for a concept. Retrieval is
// optional context: failures are absorbed into an empty result.
type Retriever interface {
	Passages(ctx context.Context, query string, k int) ([]string, error)
}
