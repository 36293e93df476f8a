package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/marquee/internal/model"
)

var eventRowColumns = []string{"id", "title", "event_date", "venue", "image_url"}

func TestPostgresEventRepo_ListPublished_WithoutFrom(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEventRepo(db)

	mock.ExpectQuery(`WHERE is_published = TRUE ORDER BY event_date ASC, id ASC LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow("e1", "Opening Night", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), "Main Hall", "https://cdn.example.com/1.jpg").
			AddRow("e2", "Encore", time.Date(2030, 2, 14, 0, 0, 0, 0, time.UTC), "Side Stage", ""))

	events, err := repo.ListPublished(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Date != "2030-01-01" || events[1].Date != "2030-02-14" {
		t.Errorf("dates = %q, %q", events[0].Date, events[1].Date)
	}
	if events[0].ImageURL != "https://cdn.example.com/1.jpg" {
		t.Errorf("ImageURL = %q", events[0].ImageURL)
	}
}

func TestPostgresEventRepo_ListPublished_WithFrom(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEventRepo(db)

	from := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`AND event_date >= \$1 ORDER BY event_date ASC, id ASC LIMIT \$2`).
		WithArgs("2030-06-01", 32).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))

	events, err := repo.ListPublished(context.Background(), &from, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", events)
	}
}

func TestPostgresEventRepo_ListPublished_QueryError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresEventRepo(db)

	mock.ExpectQuery(`FROM events`).WillReturnError(errors.New("relation does not exist"))

	_, err := repo.ListPublished(context.Background(), nil, 10)
	var perr *model.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}
