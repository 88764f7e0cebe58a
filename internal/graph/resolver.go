package graph

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/mosaic/internal/store"
	"github.com/mohammad-safakhou/mosaic/internal/telemetry"
)

// MaxPrereqDepth bounds prerequisite traversal. Three hops covers any
// realistic foundation chain without dragging the whole graph into
// every prompt.
const MaxPrereqDepth = 3

// Reader is the read surface the resolver needs from the concept store.
type Reader interface {
	GetConcept(ctx context.Context, name string) (store.Concept, bool, error)
	ListConcepts(ctx context.Context) ([]store.Concept, error)
	ListEdges(ctx context.Context, kind string) ([]store.Edge, error)
	DirectPrerequisites(ctx context.Context, name string) ([]store.Concept, error)
	PrerequisitesWithin(ctx context.Context, name string, maxDepth int) ([]store.Concept, error)
	PrerequisiteChain(ctx context.Context, name string, maxDepth int) ([]store.ChainEntry, error)
	RelatedConcepts(ctx context.Context, name string, limit int) ([]store.Concept, error)
	StatusCounts(ctx context.Context) (map[string]int, error)
}

// Writer is the status-write surface used by mastery transitions.
type Writer interface {
	SetStatus(ctx context.Context, name, status string) error
	BulkBackfill(ctx context.Context, names []string, masteredAt time.Time) (int64, error)
}

// Resolver answers prerequisite and recommendation questions over the
// curriculum graph. Every read is fail-soft: a storage error is logged,
// counted, and absorbed into an empty result so the conversation never
// dies on a graph hiccup.
type Resolver struct {
	reader    Reader
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

func NewResolver(reader Reader, tel *telemetry.Telemetry) *Resolver {
	return &Resolver{
		reader:    reader,
		logger:    log.New(log.Writer(), "[GRAPH] ", log.LstdFlags),
		telemetry: tel,
	}
}

func (r *Resolver) absorb(op string, err error) {
	r.logger.Printf("%s failed (returning empty): %v", op, err)
	if r.telemetry != nil {
		r.telemetry.RecordGraphReadFailure()
	}
}

// Lookup returns the node for a concept name, if it exists.
func (r *Resolver) Lookup(ctx context.Context, name string) (store.Concept, bool) {
	c, ok, err := r.reader.GetConcept(ctx, name)
	if err != nil {
		r.absorb("lookup", err)
		return store.Concept{}, false
	}
	return c, ok
}

// PrerequisitesOf returns all prerequisites within MaxPrereqDepth hops,
// easiest first.
func (r *Resolver) PrerequisitesOf(ctx context.Context, concept string) []store.Concept {
	out, err := r.reader.PrerequisitesWithin(ctx, concept, MaxPrereqDepth)
	if err != nil {
		r.absorb("prerequisites", err)
		return nil
	}
	return out
}

// UnmetPrerequisitesOf returns the names of prerequisites the student
// has not mastered, easiest first. Anything short of mastered counts as
// unmet.
func (r *Resolver) UnmetPrerequisitesOf(ctx context.Context, concept string) []string {
	var out []string
	for _, c := range r.PrerequisitesOf(ctx, concept) {
		if c.Status != store.StatusMastered {
			out = append(out, c.Name)
		}
	}
	return out
}

// PrerequisiteChain returns the full chain with hop depths in
// ascending distance, nearest prerequisite first.
func (r *Resolver) PrerequisiteChain(ctx context.Context, concept string) []store.ChainEntry {
	out, err := r.reader.PrerequisiteChain(ctx, concept, MaxPrereqDepth)
	if err != nil {
		r.absorb("prerequisite chain", err)
		return nil
	}
	return out
}

// UnmetPrerequisitesByDistance returns the names of non-mastered
// prerequisites ordered by hop distance, nearest first. The head of
// the list is the root-cause candidate for a failed assessment.
func (r *Resolver) UnmetPrerequisitesByDistance(ctx context.Context, concept string) []string {
	var out []string
	for _, e := range r.PrerequisiteChain(ctx, concept) {
		if e.Concept.Status != store.StatusMastered {
			out = append(out, e.Concept.Name)
		}
	}
	return out
}

// RelatedTo returns up to limit soft neighbors of a concept.
func (r *Resolver) RelatedTo(ctx context.Context, concept string, limit int) []store.Concept {
	out, err := r.reader.RelatedConcepts(ctx, concept, limit)
	if err != nil {
		r.absorb("related concepts", err)
		return nil
	}
	return out
}

// LearningPath returns the prerequisite chain for a goal concept
// followed by the goal itself, foundation first, ready to study in
// order.
func (r *Resolver) LearningPath(ctx context.Context, goal string) []store.Concept {
	chain := r.PrerequisiteChain(ctx, goal)
	var out []store.Concept
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Concept)
	}
	if c, ok := r.Lookup(ctx, goal); ok {
		out = append(out, c)
	}
	return out
}

// NextRecommendedTopic picks the first topic, in name order, that the
// student has not mastered and whose direct prerequisites are all
// mastered. The second return is false when nothing qualifies or the
// graph could not be read.
func (r *Resolver) NextRecommendedTopic(ctx context.Context) (string, bool) {
	concepts, err := r.reader.ListConcepts(ctx)
	if err != nil {
		r.absorb("list concepts", err)
		return "", false
	}
	edges, err := r.reader.ListEdges(ctx, store.EdgeRequires)
	if err != nil {
		r.absorb("list edges", err)
		return "", false
	}

	status := make(map[string]string, len(concepts))
	for _, c := range concepts {
		status[c.Name] = c.Status
	}
	prereqs := make(map[string][]string)
	for _, e := range edges {
		prereqs[e.FromName] = append(prereqs[e.FromName], e.ToName)
	}

	sort.Slice(concepts, func(i, j int) bool { return concepts[i].Name < concepts[j].Name })
	for _, c := range concepts {
		if c.Kind != store.KindTopic || c.Status == store.StatusMastered {
			continue
		}
		ready := true
		for _, p := range prereqs[c.Name] {
			if status[p] != store.StatusMastered {
				ready = false
				break
			}
		}
		if ready {
			return c.Name, true
		}
	}
	return "", false
}

// MapFreeTextToTopic maps free text onto a known concept name by
// case-insensitive containment, preferring the longest matching name.
// Returns "" when nothing matches.
func (r *Resolver) MapFreeTextToTopic(ctx context.Context, text string) string {
	concepts, err := r.reader.ListConcepts(ctx)
	if err != nil {
		r.absorb("list concepts", err)
		return ""
	}
	lower := strings.ToLower(text)
	best := ""
	for _, c := range concepts {
		if strings.Contains(lower, strings.ToLower(c.Name)) && len(c.Name) > len(best) {
			best = c.Name
		}
	}
	return best
}

// StatusCounts returns node counts per status, empty on read failure.
func (r *Resolver) StatusCounts(ctx context.Context) map[string]int {
	counts, err := r.reader.StatusCounts(ctx)
	if err != nil {
		r.absorb("status counts", err)
		return map[string]int{}
	}
	return counts
}
