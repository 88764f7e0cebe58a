package memory

import (
	"context"
	"errors"
	"time"
)

// Event kinds appended to a student's event log. The log is
// append-only; derived values (attempt numbers, mistake history) are
// computed from it on read and never stored.
const (
	EventExplanationGiven    = "explanation_given"
	EventQuestionAsked       = "question_asked"
	EventAssessmentResult    = "assessment_result"
	EventFeedbackGiven       = "feedback_given"
	EventRecommendationGiven = "recommendation_given"
)

// ErrProfileNotFound is returned by Profile when the student has no
// stored profile yet. Callers that want lazy defaults should use
// ProfileOrDefault.
var ErrProfileNotFound = errors.New("student profile not found")

// StudentProfile is the per-student core memory block: who they are,
// where they are in the curriculum, and how they like to learn.
type StudentProfile struct {
	StudentID        string   `json:"student_id"`
	CurrentLevel     string   `json:"current_level"`
	CurrentTopic     string   `json:"current_topic"`
	LearningStyle    string   `json:"learning_style"`
	Goal             string   `json:"goal"`
	WeakAreas        []string `json:"weak_areas"`
	MasteredConcepts []string `json:"mastered_concepts"`
}

// DefaultProfile is what a brand-new student looks like before any
// onboarding has happened.
func DefaultProfile(studentID string) StudentProfile {
	return StudentProfile{
		StudentID:     studentID,
		CurrentLevel:  "beginner",
		LearningStyle: "code_first",
	}
}

// Event is one archival record in a student's event log.
type Event struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Kind      string    `json:"kind"`
	Concept   string    `json:"concept,omitempty"`
	Question  string    `json:"question,omitempty"`
	Answer    string    `json:"answer,omitempty"`
	Text      string    `json:"text,omitempty"`
	Score     int       `json:"score,omitempty"`
	Passed    bool      `json:"passed,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Action    string    `json:"action,omitempty"`
	Focus     string    `json:"focus,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the student memory access surface. Profile reads and event
// reads are expected to be treated fail-soft by callers in the
// conversational path; event appends after a graded attempt are not.
type Store interface {
	Profile(ctx context.Context, studentID string) (StudentProfile, error)
	SaveProfile(ctx context.Context, profile StudentProfile) error
	AppendEvent(ctx context.Context, event Event) error
	RecentEvents(ctx context.Context, studentID string, limit int) ([]Event, error)
	ConceptEvents(ctx context.Context, studentID, concept, kind string) ([]Event, error)
	Close() error
}

// ProfileOrDefault reads the student's profile, substituting the lazy
// default for a missing one. Other errors pass through.
func ProfileOrDefault(ctx context.Context, s Store, studentID string) (StudentProfile, error) {
	p, err := s.Profile(ctx, studentID)
	if errors.Is(err, ErrProfileNotFound) {
		return DefaultProfile(studentID), nil
	}
	return p, err
}

// FailedAttempts counts prior graded attempts at a concept that did not
// pass. The attempt number for a new evaluation is this count plus one.
func FailedAttempts(ctx context.Context, s Store, studentID, concept string) (int, error) {
	events, err := s.ConceptEvents(ctx, studentID, concept, EventFeedbackGiven)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range events {
		if !e.Passed {
			n++
		}
	}
	return n, nil
}

// MistakeHistory returns the failed assessment results for a concept,
// oldest first. The feedback prompt uses these to name recurring
// misconceptions.
func MistakeHistory(ctx context.Context, s Store, studentID, concept string) ([]Event, error) {
	events, err := s.ConceptEvents(ctx, studentID, concept, EventAssessmentResult)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		if !e.Passed {
			out = append(out, e)
		}
	}
	return out, nil
}

// RecordMastered adds a concept to the profile's mastered list if it is
// not already there, and clears it from the weak areas.
func RecordMastered(ctx context.Context, s Store, studentID, concept string) error {
	p, err := ProfileOrDefault(ctx, s, studentID)
	if err != nil {
		return err
	}
	for _, c := range p.MasteredConcepts {
		if c == concept {
			return nil
		}
	}
	p.MasteredConcepts = append(p.MasteredConcepts, concept)
	weak := p.WeakAreas[:0]
	for _, c := range p.WeakAreas {
		if c != concept {
			weak = append(weak, c)
		}
	}
	p.WeakAreas = weak
	return s.SaveProfile(ctx, p)
}

// RecordWeakArea adds a concept to the profile's weak areas if missing.
func RecordWeakArea(ctx context.Context, s Store, studentID, concept string) error {
	p, err := ProfileOrDefault(ctx, s, studentID)
	if err != nil {
		return err
	}
	for _, c := range p.WeakAreas {
		if c == concept {
			return nil
		}
	}
	p.WeakAreas = append(p.WeakAreas, concept)
	return s.SaveProfile(ctx, p)
}
