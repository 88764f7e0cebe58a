package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// ErrConceptNotFound is returned by status writes targeting a node that
// does not exist. Mastery writes must fail loudly rather than silently
// creating nodes.
var ErrConceptNotFound = errors.New("concept not found")

// difficultyRank orders difficulties in SQL without a lookup table.
const difficultyRank = `CASE difficulty WHEN 'beginner' THEN 0 WHEN 'intermediate' THEN 1 WHEN 'advanced' THEN 2 ELSE 3 END`

const conceptColumns = `name, kind, difficulty, topic_area, COALESCE(parent_topic,''), status, mastered_at, updated_at`

func scanConcept(row interface{ Scan(...any) error }) (Concept, error) {
	var c Concept
	var masteredAt sql.NullTime
	if err := row.Scan(&c.Name, &c.Kind, &c.Difficulty, &c.TopicArea, &c.ParentTopic, &c.Status, &masteredAt, &c.UpdatedAt); err != nil {
		return Concept{}, err
	}
	if masteredAt.Valid {
		t := masteredAt.Time
		c.MasteredAt = &t
	}
	return c, nil
}

// GetConcept looks up a single node by name.
func (s *Store) GetConcept(ctx context.Context, name string) (Concept, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+conceptColumns+` FROM concepts WHERE name=$1`, name)
	c, err := scanConcept(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Concept{}, false, nil
	}
	if err != nil {
		return Concept{}, false, err
	}
	return c, true, nil
}

// ListConcepts returns every node, name-ordered.
func (s *Store) ListConcepts(ctx context.Context) ([]Concept, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+conceptColumns+` FROM concepts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConcepts(rows)
}

// ListEdges returns every edge of one kind.
func (s *Store) ListEdges(ctx context.Context, kind string) ([]Edge, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT from_name, to_name, kind FROM concept_edges WHERE kind=$1`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.FromName, &e.ToName, &e.Kind); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertConcept inserts or updates node metadata. Status and the
// mastered_at latch are untouched on conflict; SetStatus owns those.
func (s *Store) UpsertConcept(ctx context.Context, c Concept) error {
	if c.Status == "" {
		c.Status = StatusUnreached
	}
	if !ValidStatus(c.Status) {
		return fmt.Errorf("invalid status %q", c.Status)
	}
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO concepts (name, kind, difficulty, topic_area, parent_topic, status, updated_at)
        VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,now())
        ON CONFLICT (name) DO UPDATE SET
            kind=EXCLUDED.kind,
            difficulty=EXCLUDED.difficulty,
            topic_area=EXCLUDED.topic_area,
            parent_topic=EXCLUDED.parent_topic,
            updated_at=now()`,
		c.Name, c.Kind, c.Difficulty, c.TopicArea, c.ParentTopic, c.Status)
	return err
}

// UpsertEdge inserts a directed edge if it does not already exist.
func (s *Store) UpsertEdge(ctx context.Context, fromName, toName, kind string) error {
	_, err := s.DB.ExecContext(ctx, `
        INSERT INTO concept_edges (from_name, to_name, kind)
        VALUES ($1,$2,$3)
        ON CONFLICT (from_name, to_name, kind) DO NOTHING`,
		fromName, toName, kind)
	return err
}

// SetStatus transitions a node to the given status. updated_at is
// always overwritten; mastered_at is set once, the first time the node
// reaches mastered, and never again.
func (s *Store) SetStatus(ctx context.Context, name, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := s.DB.ExecContext(ctx, `
        UPDATE concepts SET
            status=$2,
            updated_at=now(),
            mastered_at=CASE WHEN $2='mastered' AND mastered_at IS NULL THEN now() ELSE mastered_at END
        WHERE name=$1`,
		name, status)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConceptNotFound, name)
	}
	if statusCounter != nil {
		statusCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
	return nil
}

// BulkBackfill marks the named concepts mastered with a caller-supplied
// timestamp. Already-mastered nodes keep their original mastered_at, so
// replays are idempotent and never move the latch. Returns the number
// of rows transitioned.
func (s *Store) BulkBackfill(ctx context.Context, names []string, masteredAt time.Time) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	res, err := s.DB.ExecContext(ctx, `
        UPDATE concepts SET
            status='mastered',
            updated_at=now(),
            mastered_at=COALESCE(mastered_at, $2)
        WHERE name = ANY($1) AND status <> 'mastered'`,
		pq.Array(names), masteredAt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if statusCounter != nil && n > 0 {
		statusCounter.Add(ctx, n, otelmetric.WithAttributes(attribute.String("status", StatusMastered)))
	}
	return n, nil
}

// DirectPrerequisites returns the immediate REQUIRES targets of a node,
// easiest first.
func (s *Store) DirectPrerequisites(ctx context.Context, name string) ([]Concept, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT `+conceptColumns+` FROM concepts
        WHERE name IN (SELECT to_name FROM concept_edges WHERE from_name=$1 AND kind='REQUIRES')
        ORDER BY `+difficultyRank+`, name`,
		name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConcepts(rows)
}

// PrerequisitesWithin walks REQUIRES edges from a node up to maxDepth
// hops and returns the distinct prerequisites, easiest first.
func (s *Store) PrerequisitesWithin(ctx context.Context, name string, maxDepth int) ([]Concept, error) {
	rows, err := s.DB.QueryContext(ctx, `
        WITH RECURSIVE prereqs(name, depth) AS (
            SELECT to_name, 1 FROM concept_edges WHERE from_name=$1 AND kind='REQUIRES'
            UNION
            SELECT e.to_name, p.depth+1
            FROM concept_edges e JOIN prereqs p ON e.from_name = p.name
            WHERE e.kind='REQUIRES' AND p.depth < $2
        )
        SELECT `+conceptColumns+` FROM concepts
        WHERE name IN (SELECT name FROM prereqs)
        ORDER BY `+difficultyRank+`, name`,
		name, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConcepts(rows)
}

// ChainEntry pairs a prerequisite with its hop distance from the root.
type ChainEntry struct {
	Concept Concept
	Depth   int
}

// PrerequisiteChain returns prerequisites with their minimum hop depth
// in ascending distance, so the head of the list is the nearest
// prerequisite of the named concept.
func (s *Store) PrerequisiteChain(ctx context.Context, name string, maxDepth int) ([]ChainEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
        WITH RECURSIVE prereqs(name, depth) AS (
            SELECT to_name, 1 FROM concept_edges WHERE from_name=$1 AND kind='REQUIRES'
            UNION
            SELECT e.to_name, p.depth+1
            FROM concept_edges e JOIN prereqs p ON e.from_name = p.name
            WHERE e.kind='REQUIRES' AND p.depth < $2
        )
        SELECT `+conceptColumns+`, d.depth FROM concepts
        JOIN (SELECT name AS pname, MIN(depth) AS depth FROM prereqs GROUP BY name) d ON concepts.name = d.pname
        ORDER BY d.depth, `+difficultyRank+`, name`,
		name, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChainEntry
	for rows.Next() {
		var c Concept
		var masteredAt sql.NullTime
		var depth int
		if err := rows.Scan(&c.Name, &c.Kind, &c.Difficulty, &c.TopicArea, &c.ParentTopic, &c.Status, &masteredAt, &c.UpdatedAt, &depth); err != nil {
			return nil, err
		}
		if masteredAt.Valid {
			t := masteredAt.Time
			c.MasteredAt = &t
		}
		out = append(out, ChainEntry{Concept: c, Depth: depth})
	}
	return out, rows.Err()
}

// RelatedConcepts returns up to limit neighbors over the softer edge
// kinds, in either direction.
func (s *Store) RelatedConcepts(ctx context.Context, name string, limit int) ([]Concept, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.DB.QueryContext(ctx, `
        SELECT DISTINCT `+conceptColumns+` FROM concepts
        WHERE name IN (
            SELECT to_name FROM concept_edges WHERE from_name=$1 AND kind IN ('RELATED_TO','BUILDS_ON','USED_IN')
            UNION
            SELECT from_name FROM concept_edges WHERE to_name=$1 AND kind IN ('RELATED_TO','BUILDS_ON','USED_IN')
        )
        LIMIT $2`,
		name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConcepts(rows)
}

// StatusCounts returns the number of nodes per status.
func (s *Store) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM concepts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func collectConcepts(rows *sql.Rows) ([]Concept, error) {
	var out []Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
