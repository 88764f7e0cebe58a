package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Store wraps the Postgres connection holding the curriculum graph and
// user accounts.
type Store struct {
	DB *sql.DB
}

// Mastery statuses persisted on concept nodes. This vocabulary is the
// storage contract; presentation layers map it to whatever they need.
const (
	StatusUnreached = "unreached"
	StatusStudying  = "studying"
	StatusAssessing = "assessing"
	StatusMastered  = "mastered"
	StatusWeak      = "weak"
	StatusPrereqGap = "prereq_gap"
)

// Edge kinds between concepts.
const (
	EdgeRequires  = "REQUIRES"
	EdgeBuildsOn  = "BUILDS_ON"
	EdgePartOf    = "PART_OF"
	EdgeUsedIn    = "USED_IN"
	EdgeRelatedTo = "RELATED_TO"
)

// Concept kinds.
const (
	KindTopic     = "topic"
	KindTechnique = "technique"
)

// ValidStatus reports whether s is one of the persisted statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusUnreached, StatusStudying, StatusAssessing, StatusMastered, StatusWeak, StatusPrereqGap:
		return true
	}
	return false
}

// Concept is one node of the curriculum graph. Name is the primary key.
type Concept struct {
	Name        string
	Kind        string
	Difficulty  string
	TopicArea   string
	ParentTopic string
	Status      string
	MasteredAt  *time.Time
	UpdatedAt   time.Time
}

// Edge is one directed relationship between concepts.
type Edge struct {
	FromName string
	ToName   string
	Kind     string
}

var (
	metricsOnce    sync.Once
	statusCounter  otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	statusCounter, err = meter.Int64Counter("concept_status_updates_total")
	if err != nil {
		metricsInitErr = err
	}
}

// New opens the store from DATABASE_URL or discrete POSTGRES_* vars.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN opens and pings the store at the given DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	metricsOnce.Do(initStoreMetrics)
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (id, email, password_hash) VALUES ($1,$2,$3)`, id, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}
