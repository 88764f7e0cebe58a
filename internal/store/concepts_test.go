package store

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestSetStatusLatchesMasteredAt(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE concepts SET`).
		WithArgs("PCA", StatusMastered).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SetStatus(context.Background(), "PCA", StatusMastered); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetStatusMissingConcept(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE concepts SET`).
		WithArgs("Nope", StatusWeak).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetStatus(context.Background(), "Nope", StatusWeak)
	if !errors.Is(err, ErrConceptNotFound) {
		t.Fatalf("SetStatus error = %v, want ErrConceptNotFound", err)
	}
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	s, _ := newMockStore(t)
	if err := s.SetStatus(context.Background(), "PCA", "green"); err == nil {
		t.Fatal("SetStatus accepted an unknown status")
	}
}

func TestBulkBackfill(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE concepts SET`).
		WithArgs(pq.Array([]string{"Arrays", "Loops"}), at).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.BulkBackfill(context.Background(), []string{"Arrays", "Loops"}, at)
	if err != nil {
		t.Fatalf("BulkBackfill: %v", err)
	}
	if n != 2 {
		t.Fatalf("BulkBackfill = %d rows, want 2", n)
	}
}

func TestBulkBackfillEmptyInputSkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	n, err := s.BulkBackfill(context.Background(), nil, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("BulkBackfill(nil) = %d, %v; want 0, nil", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query issued: %v", err)
	}
}

func TestGetConcept(t *testing.T) {
	s, mock := newMockStore(t)

	cols := []string{"name", "kind", "difficulty", "topic_area", "parent_topic", "status", "mastered_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM concepts WHERE name=\$1`).
		WithArgs("PCA").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("PCA", KindTechnique, "intermediate", "Machine Learning", "Dimensionality Reduction", StatusStudying, nil, now))

	c, ok, err := s.GetConcept(context.Background(), "PCA")
	if err != nil {
		t.Fatalf("GetConcept: %v", err)
	}
	if !ok {
		t.Fatal("GetConcept: not found")
	}
	if c.Status != StatusStudying || c.ParentTopic != "Dimensionality Reduction" || c.MasteredAt != nil {
		t.Fatalf("unexpected concept: %+v", c)
	}
}

func TestGetConceptNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	cols := []string{"name", "kind", "difficulty", "topic_area", "parent_topic", "status", "mastered_at", "updated_at"}
	mock.ExpectQuery(`SELECT .* FROM concepts WHERE name=\$1`).
		WithArgs("Nope").
		WillReturnRows(sqlmock.NewRows(cols))

	_, ok, err := s.GetConcept(context.Background(), "Nope")
	if err != nil {
		t.Fatalf("GetConcept: %v", err)
	}
	if ok {
		t.Fatal("GetConcept reported a missing concept as found")
	}
}

func TestDirectPrerequisitesOrder(t *testing.T) {
	s, mock := newMockStore(t)

	cols := []string{"name", "kind", "difficulty", "topic_area", "parent_topic", "status", "mastered_at", "updated_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM concepts\s+WHERE name IN \(SELECT to_name FROM concept_edges`).
		WithArgs("PCA").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("Linear Algebra", KindTopic, "beginner", "Math", "", StatusMastered, now, now).
			AddRow("Eigendecomposition", KindTechnique, "advanced", "Math", "Linear Algebra", StatusUnreached, nil, now))

	got, err := s.DirectPrerequisites(context.Background(), "PCA")
	if err != nil {
		t.Fatalf("DirectPrerequisites: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Linear Algebra" {
		t.Fatalf("unexpected prerequisites: %+v", got)
	}
}
