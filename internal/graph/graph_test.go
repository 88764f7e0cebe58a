package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/mosaic/internal/store"
)

// fakeGraph implements Reader and Writer over in-memory maps.
type fakeGraph struct {
	concepts map[string]store.Concept
	requires map[string][]string // from -> to
	failing  bool
	statuses map[string]string // writes recorded here
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		concepts: make(map[string]store.Concept),
		requires: make(map[string][]string),
		statuses: make(map[string]string),
	}
}

func (f *fakeGraph) add(name, kind, difficulty, status string, prereqs ...string) {
	f.concepts[name] = store.Concept{Name: name, Kind: kind, Difficulty: difficulty, Status: status}
	f.requires[name] = prereqs
}

var errBoom = errors.New("boom")

func (f *fakeGraph) GetConcept(ctx context.Context, name string) (store.Concept, bool, error) {
	if f.failing {
		return store.Concept{}, false, errBoom
	}
	c, ok := f.concepts[name]
	return c, ok, nil
}

func (f *fakeGraph) ListConcepts(ctx context.Context) ([]store.Concept, error) {
	if f.failing {
		return nil, errBoom
	}
	var out []store.Concept
	for _, c := range f.concepts {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeGraph) ListEdges(ctx context.Context, kind string) ([]store.Edge, error) {
	if f.failing {
		return nil, errBoom
	}
	var out []store.Edge
	for from, tos := range f.requires {
		for _, to := range tos {
			out = append(out, store.Edge{FromName: from, ToName: to, Kind: store.EdgeRequires})
		}
	}
	return out, nil
}

func (f *fakeGraph) DirectPrerequisites(ctx context.Context, name string) ([]store.Concept, error) {
	if f.failing {
		return nil, errBoom
	}
	var out []store.Concept
	for _, p := range f.requires[name] {
		out = append(out, f.concepts[p])
	}
	return out, nil
}

func (f *fakeGraph) PrerequisitesWithin(ctx context.Context, name string, maxDepth int) ([]store.Concept, error) {
	if f.failing {
		return nil, errBoom
	}
	seen := map[string]bool{}
	var out []store.Concept
	frontier := []string{name}
	for depth := 0; depth < maxDepth; depth++ {
		var next []string
		for _, n := range frontier {
			for _, p := range f.requires[n] {
				if !seen[p] {
					seen[p] = true
					out = append(out, f.concepts[p])
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

func (f *fakeGraph) PrerequisiteChain(ctx context.Context, name string, maxDepth int) ([]store.ChainEntry, error) {
	if f.failing {
		return nil, errBoom
	}
	seen := map[string]bool{}
	var out []store.ChainEntry
	frontier := []string{name}
	for depth := 1; depth <= maxDepth; depth++ {
		var next []string
		for _, n := range frontier {
			for _, p := range f.requires[n] {
				if !seen[p] {
					seen[p] = true
					out = append(out, store.ChainEntry{Concept: f.concepts[p], Depth: depth})
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return out, nil
}

func (f *fakeGraph) RelatedConcepts(ctx context.Context, name string, limit int) ([]store.Concept, error) {
	if f.failing {
		return nil, errBoom
	}
	return nil, nil
}

func (f *fakeGraph) StatusCounts(ctx context.Context) (map[string]int, error) {
	if f.failing {
		return nil, errBoom
	}
	out := map[string]int{}
	for _, c := range f.concepts {
		out[c.Status]++
	}
	return out, nil
}

func (f *fakeGraph) SetStatus(ctx context.Context, name, status string) error {
	if f.failing {
		return errBoom
	}
	f.statuses[name] = status
	return nil
}

func (f *fakeGraph) BulkBackfill(ctx context.Context, names []string, masteredAt time.Time) (int64, error) {
	if f.failing {
		return 0, errBoom
	}
	var n int64
	for _, name := range names {
		if f.statuses[name] != store.StatusMastered {
			f.statuses[name] = store.StatusMastered
			n++
		}
	}
	return n, nil
}

func TestUnmetPrerequisites(t *testing.T) {
	g := newFakeGraph()
	g.add("Linear Algebra", store.KindTopic, "beginner", store.StatusMastered)
	g.add("Statistics", store.KindTopic, "beginner", store.StatusStudying)
	g.add("PCA", store.KindTechnique, "intermediate", store.StatusAssessing, "Linear Algebra", "Statistics")

	r := NewResolver(g, nil)
	unmet := r.UnmetPrerequisitesOf(context.Background(), "PCA")
	if len(unmet) != 1 || unmet[0] != "Statistics" {
		t.Fatalf("unmet = %v, want [Statistics]", unmet)
	}
}

func TestUnmetPrerequisitesByDistanceNearestFirst(t *testing.T) {
	// Algebra is easier but two hops away; Statistics is the nearest
	// unmet prerequisite and must lead the list.
	g := newFakeGraph()
	g.add("Algebra", store.KindTopic, "beginner", store.StatusStudying)
	g.add("Statistics", store.KindTopic, "intermediate", store.StatusStudying, "Algebra")
	g.add("PCA", store.KindTechnique, "advanced", store.StatusAssessing, "Statistics")

	r := NewResolver(g, nil)
	unmet := r.UnmetPrerequisitesByDistance(context.Background(), "PCA")
	if len(unmet) != 2 || unmet[0] != "Statistics" || unmet[1] != "Algebra" {
		t.Fatalf("unmet = %v, want [Statistics Algebra]", unmet)
	}
}

func TestResolverFailsSoft(t *testing.T) {
	g := newFakeGraph()
	g.failing = true
	r := NewResolver(g, nil)
	ctx := context.Background()

	if got := r.PrerequisitesOf(ctx, "PCA"); got != nil {
		t.Fatalf("PrerequisitesOf on failing reader = %v, want nil", got)
	}
	if got := r.UnmetPrerequisitesOf(ctx, "PCA"); got != nil {
		t.Fatalf("UnmetPrerequisitesOf on failing reader = %v, want nil", got)
	}
	if topic, ok := r.NextRecommendedTopic(ctx); ok || topic != "" {
		t.Fatalf("NextRecommendedTopic on failing reader = %q, %t", topic, ok)
	}
	if got := r.MapFreeTextToTopic(ctx, "teach me PCA"); got != "" {
		t.Fatalf("MapFreeTextToTopic on failing reader = %q, want empty", got)
	}
}

func TestNextRecommendedTopic(t *testing.T) {
	g := newFakeGraph()
	g.add("Arrays", store.KindTopic, "beginner", store.StatusMastered)
	g.add("Loops", store.KindTopic, "beginner", store.StatusMastered)
	// Recursion ready (all prereqs mastered), Graphs blocked.
	g.add("Recursion", store.KindTopic, "intermediate", store.StatusUnreached, "Loops")
	g.add("Graphs", store.KindTopic, "intermediate", store.StatusUnreached, "Recursion")
	// Techniques never recommended directly.
	g.add("Binary Search", store.KindTechnique, "beginner", store.StatusUnreached, "Arrays")

	r := NewResolver(g, nil)
	topic, ok := r.NextRecommendedTopic(context.Background())
	if !ok || topic != "Recursion" {
		t.Fatalf("NextRecommendedTopic = %q, %t; want Recursion, true", topic, ok)
	}
}

func TestNextRecommendedTopicNoneReady(t *testing.T) {
	g := newFakeGraph()
	g.add("Arrays", store.KindTopic, "beginner", store.StatusMastered)

	r := NewResolver(g, nil)
	topic, ok := r.NextRecommendedTopic(context.Background())
	if ok || topic != "" {
		t.Fatalf("NextRecommendedTopic = %q, %t; want empty, false", topic, ok)
	}
}

func TestMapFreeTextToTopicPrefersLongestMatch(t *testing.T) {
	g := newFakeGraph()
	g.add("Trees", store.KindTopic, "intermediate", store.StatusUnreached)
	g.add("Binary Trees", store.KindTopic, "intermediate", store.StatusUnreached)

	r := NewResolver(g, nil)
	got := r.MapFreeTextToTopic(context.Background(), "can you explain binary trees to me?")
	if got != "Binary Trees" {
		t.Fatalf("MapFreeTextToTopic = %q, want Binary Trees", got)
	}
	if got := r.MapFreeTextToTopic(context.Background(), "what's for lunch"); got != "" {
		t.Fatalf("MapFreeTextToTopic matched nothing-text: %q", got)
	}
}

func TestApplyVerdict(t *testing.T) {
	cases := []struct {
		name       string
		passed     bool
		attempt    int
		unmet      []string
		wantStatus string
		wantWeak   string
	}{
		{"passed masters", true, 1, nil, store.StatusMastered, ""},
		{"third failure goes weak", false, 3, []string{"Arrays"}, store.StatusWeak, ""},
		{"failure with gap", false, 1, []string{"Arrays", "Loops"}, store.StatusPrereqGap, "Arrays"},
		{"plain failure keeps studying", false, 2, nil, store.StatusStudying, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newFakeGraph()
			m := NewMastery(g, 3)
			out, err := m.ApplyVerdict(context.Background(), "Recursion", tc.passed, tc.attempt, tc.unmet)
			if err != nil {
				t.Fatalf("ApplyVerdict: %v", err)
			}
			if out.ConceptStatus != tc.wantStatus || out.WeakPrereq != tc.wantWeak {
				t.Fatalf("outcome = %+v, want status=%s weak=%s", out, tc.wantStatus, tc.wantWeak)
			}
			if g.statuses["Recursion"] != tc.wantStatus {
				t.Fatalf("persisted status = %q, want %q", g.statuses["Recursion"], tc.wantStatus)
			}
			if tc.wantWeak != "" && g.statuses[tc.wantWeak] != store.StatusWeak {
				t.Fatalf("weak prereq %q not persisted weak", tc.wantWeak)
			}
		})
	}
}

func TestApplyVerdictFailsLoud(t *testing.T) {
	g := newFakeGraph()
	g.failing = true
	m := NewMastery(g, 3)
	if _, err := m.ApplyVerdict(context.Background(), "Recursion", true, 1, nil); err == nil {
		t.Fatal("ApplyVerdict swallowed a write error")
	}
}
