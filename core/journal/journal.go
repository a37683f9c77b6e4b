// Package journal persists one row per chart request in Postgres.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/chartbot/core/logger"
	"github.com/m3rciful/chartbot/dispatch"
)

const insertRequest = `INSERT INTO chart_requests
	(chat_id, source, kind, symbol, interval, studies, style, status, duration_ms, created_at)
VALUES
	(:chat_id, :source, :kind, :symbol, :interval, :studies, :style, :status, :duration_ms, :created_at)`

// Row mirrors the chart_requests table.
type Row struct {
	ChatID     int64     `db:"chat_id"`
	Source     string    `db:"source"`
	Kind       string    `db:"kind"`
	Symbol     string    `db:"symbol"`
	Interval   string    `db:"interval"`
	Studies    string    `db:"studies"`
	Style      string    `db:"style"`
	Status     int       `db:"status"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

// Execer is satisfied by *sqlx.DB and *sqlx.Tx.
type Execer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

var _ Execer = (*sqlx.DB)(nil)

// Journal implements dispatch.Recorder.
type Journal struct {
	db  Execer
	now func() time.Time
}

// New returns a journal writing through db.
func New(db Execer) *Journal {
	return &Journal{db: db, now: time.Now}
}

// RowFor converts a dispatch request into a table row.
func RowFor(r dispatch.Request, at time.Time) Row {
	return Row{
		ChatID:     r.ChatID,
		Source:     r.Source,
		Kind:       r.Kind.String(),
		Symbol:     r.Query.Symbol,
		Interval:   r.Query.Interval,
		Studies:    r.Query.StudiesString(),
		Style:      r.Query.Style,
		Status:     r.Status,
		DurationMS: r.Duration.Milliseconds(),
		CreatedAt:  at.UTC(),
	}
}

// Record inserts one row.
func (j *Journal) Record(ctx context.Context, r dispatch.Request) error {
	start := time.Now()
	if _, err := j.db.NamedExecContext(ctx, insertRequest, RowFor(r, j.now())); err != nil {
		return fmt.Errorf("journal: insert chart request: %w", err)
	}
	logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "journal.insert",
		slog.String("kind", r.Kind.String()),
		slog.String("symbol", r.Query.Symbol),
		slog.Int("http_code", r.Status),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}
