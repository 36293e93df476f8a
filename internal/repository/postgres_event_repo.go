package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/marquee/internal/model"
)

// EventDateLayout はイベント日付の表現形式。
const EventDateLayout = "2006-01-02"

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// ListPublished は公開済みイベントを開催日・IDの昇順で最大limit件返す。
func (r *PostgresEventRepo) ListPublished(ctx context.Context, from *time.Time, limit int) ([]model.Event, error) {
	query := `SELECT id, title, event_date, venue, image_url FROM events WHERE is_published = TRUE`
	args := []any{}
	if from != nil {
		args = append(args, from.Format(EventDateLayout))
		query += fmt.Sprintf(" AND event_date >= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY event_date ASC, id ASC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.PersistenceError{Op: "list events", Err: err}
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var (
			e    model.Event
			date time.Time
		)
		if err := rows.Scan(&e.ID, &e.Title, &date, &e.Venue, &e.ImageURL); err != nil {
			return nil, &model.PersistenceError{Op: "scan event", Err: err}
		}
		e.Date = date.Format(EventDateLayout)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.PersistenceError{Op: "iterate events", Err: err}
	}

	return events, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
