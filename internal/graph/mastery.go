package graph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/mosaic/internal/store"
)

// Mastery applies status transitions to the curriculum graph. Unlike
// resolver reads, these writes fail loudly: a verdict that cannot be
// persisted must surface to the caller so the turn can be retried.
type Mastery struct {
	writer       Writer
	weakAttempts int
	logger       *log.Logger
}

// NewMastery builds the transition applier. weakAttempts is the failed
// attempt count at which a concept is downgraded to weak.
func NewMastery(writer Writer, weakAttempts int) *Mastery {
	if weakAttempts <= 0 {
		weakAttempts = 3
	}
	return &Mastery{
		writer:       writer,
		weakAttempts: weakAttempts,
		logger:       log.New(log.Writer(), "[GRAPH] ", log.LstdFlags),
	}
}

// MarkStudying records that the student received an explanation.
func (m *Mastery) MarkStudying(ctx context.Context, concept string) error {
	return m.writer.SetStatus(ctx, concept, store.StatusStudying)
}

// MarkAssessing records that a question was issued for the concept.
func (m *Mastery) MarkAssessing(ctx context.Context, concept string) error {
	return m.writer.SetStatus(ctx, concept, store.StatusAssessing)
}

// VerdictOutcome reports which nodes changed status after a graded
// attempt.
type VerdictOutcome struct {
	ConceptStatus string
	WeakPrereq    string
}

// ApplyVerdict transitions the assessed concept (and possibly its
// nearest unmet prerequisite) after grading.
//
//	passed                      -> mastered (latching mastered_at)
//	failed, attempt >= limit    -> weak
//	failed, unmet prereqs exist -> prereq_gap; nearest unmet prereq -> weak
//	failed otherwise            -> studying
func (m *Mastery) ApplyVerdict(ctx context.Context, concept string, passed bool, attempt int, unmetPrereqs []string) (VerdictOutcome, error) {
	out := VerdictOutcome{}
	switch {
	case passed:
		out.ConceptStatus = store.StatusMastered
	case attempt >= m.weakAttempts:
		out.ConceptStatus = store.StatusWeak
	case len(unmetPrereqs) > 0:
		out.ConceptStatus = store.StatusPrereqGap
		out.WeakPrereq = unmetPrereqs[0]
	default:
		out.ConceptStatus = store.StatusStudying
	}

	if err := m.writer.SetStatus(ctx, concept, out.ConceptStatus); err != nil {
		return VerdictOutcome{}, fmt.Errorf("set %s=%s: %w", concept, out.ConceptStatus, err)
	}
	if out.WeakPrereq != "" {
		if err := m.writer.SetStatus(ctx, out.WeakPrereq, store.StatusWeak); err != nil {
			return VerdictOutcome{}, fmt.Errorf("set %s=weak: %w", out.WeakPrereq, err)
		}
	}
	m.logger.Printf("verdict applied: concept=%s status=%s weak_prereq=%q", concept, out.ConceptStatus, out.WeakPrereq)
	return out, nil
}

// Backfill marks a batch of concepts mastered at a caller-supplied
// timestamp, returning how many actually transitioned.
func (m *Mastery) Backfill(ctx context.Context, concepts []string, masteredAt time.Time) (int64, error) {
	n, err := m.writer.BulkBackfill(ctx, concepts, masteredAt)
	if err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}
	m.logger.Printf("backfill: %d of %d concepts transitioned", n, len(concepts))
	return n, nil
}
