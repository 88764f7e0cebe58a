package memory

import (
	"context"
	"testing"
)

func TestProfileOrDefault(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	p, err := ProfileOrDefault(ctx, s, "stu-1")
	if err != nil {
		t.Fatalf("ProfileOrDefault: %v", err)
	}
	if p.CurrentLevel != "beginner" || p.LearningStyle != "code_first" {
		t.Fatalf("unexpected default profile: %+v", p)
	}

	p.CurrentTopic = "Dimensionality Reduction"
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	got, err := s.Profile(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Profile after save: %v", err)
	}
	if got.CurrentTopic != "Dimensionality Reduction" {
		t.Fatalf("profile not persisted: %+v", got)
	}
}

func TestFailedAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	seed := []Event{
		{StudentID: "stu-1", Kind: EventFeedbackGiven, Concept: "PCA", Passed: false, Score: 40},
		{StudentID: "stu-1", Kind: EventFeedbackGiven, Concept: "PCA", Passed: false, Score: 55},
		{StudentID: "stu-1", Kind: EventFeedbackGiven, Concept: "PCA", Passed: true, Score: 92},
		{StudentID: "stu-1", Kind: EventFeedbackGiven, Concept: "SVM", Passed: false, Score: 30},
		{StudentID: "stu-2", Kind: EventFeedbackGiven, Concept: "PCA", Passed: false, Score: 10},
	}
	for _, e := range seed {
		if err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	n, err := FailedAttempts(ctx, s, "stu-1", "PCA")
	if err != nil {
		t.Fatalf("FailedAttempts: %v", err)
	}
	if n != 2 {
		t.Fatalf("FailedAttempts = %d, want 2", n)
	}
}

func TestMistakeHistoryFiltersPassed(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	events := []Event{
		{StudentID: "stu-1", Kind: EventAssessmentResult, Concept: "PCA", Passed: false, Answer: "it's clustering"},
		{StudentID: "stu-1", Kind: EventAssessmentResult, Concept: "PCA", Passed: true, Answer: "variance projection"},
		{StudentID: "stu-1", Kind: EventQuestionAsked, Concept: "PCA", Question: "What is PCA?"},
	}
	for _, e := range events {
		if err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	hist, err := MistakeHistory(ctx, s, "stu-1", "PCA")
	if err != nil {
		t.Fatalf("MistakeHistory: %v", err)
	}
	if len(hist) != 1 || hist[0].Answer != "it's clustering" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestRecentEventsWindow(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for i := 0; i < 10; i++ {
		if err := s.AppendEvent(ctx, Event{StudentID: "stu-1", Kind: EventExplanationGiven, Concept: "Arrays"}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	got, err := s.RecentEvents(ctx, "stu-1", 6)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("RecentEvents window = %d, want 6", len(got))
	}
}

func TestRecordMasteredMovesOutOfWeakAreas(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if err := RecordWeakArea(ctx, s, "stu-1", "Recursion"); err != nil {
		t.Fatalf("RecordWeakArea: %v", err)
	}
	if err := RecordMastered(ctx, s, "stu-1", "Recursion"); err != nil {
		t.Fatalf("RecordMastered: %v", err)
	}
	// Idempotent second call.
	if err := RecordMastered(ctx, s, "stu-1", "Recursion"); err != nil {
		t.Fatalf("RecordMastered repeat: %v", err)
	}

	p, err := s.Profile(ctx, "stu-1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if len(p.MasteredConcepts) != 1 || p.MasteredConcepts[0] != "Recursion" {
		t.Fatalf("mastered list wrong: %+v", p.MasteredConcepts)
	}
	if len(p.WeakAreas) != 0 {
		t.Fatalf("weak areas not cleared: %+v", p.WeakAreas)
	}
}
