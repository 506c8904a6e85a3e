package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

const maxEvents = 500

var eventColumns = []string{"id", "user_id", "title", "description", "starts_at", "ends_at", "all_day", "created_at"}

// Repository stores events in PostgreSQL.
type Repository struct {
	pool     db.Pool
	recorder *audit.Recorder
	builder  squirrel.StatementBuilderType
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool, recorder *audit.Recorder) *Repository {
	return &Repository{
		pool:     pool,
		recorder: recorder,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// TxRepository exposes transactional operations. Every write is scoped to
// the owning user.
type TxRepository interface {
	Insert(ctx context.Context, userID int64, in EventInput) (Event, error)
	Update(ctx context.Context, userID, id int64, in EventInput) (Event, error)
	Delete(ctx context.Context, userID, id int64) (Event, error)
	RecordAudit(ctx context.Context, actorID int64, action, details string) error
}

type txRepo struct {
	tx       pgx.Tx
	recorder *audit.Recorder
	builder  squirrel.StatementBuilderType
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, recorder: r.recorder, builder: r.builder})
	})
}

// List returns the events of userID overlapping rng in start order.
func (r *Repository) List(ctx context.Context, userID int64, rng Range) ([]Event, error) {
	where := squirrel.And{squirrel.Eq{"user_id": userID}}
	if !rng.From.IsZero() {
		where = append(where, squirrel.GtOrEq{"ends_at": rng.From})
	}
	if !rng.To.IsZero() {
		where = append(where, squirrel.LtOrEq{"starts_at": rng.To})
	}
	stmt, args, err := r.builder.Select(eventColumns...).
		From("calendar_events").
		Where(where).
		OrderBy("starts_at ASC", "id ASC").
		Limit(maxEvents).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list events sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (t *txRepo) Insert(ctx context.Context, userID int64, in EventInput) (Event, error) {
	stmt, args, err := t.builder.Insert("calendar_events").
		Columns("user_id", "title", "description", "starts_at", "ends_at", "all_day").
		Values(userID, in.Title, in.Description, in.Start, in.End, in.AllDay).
		Suffix("RETURNING " + strings.Join(eventColumns, ", ")).
		ToSql()
	if err != nil {
		return Event{}, fmt.Errorf("build insert event sql: %w", err)
	}
	e, err := scanEvent(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

func (t *txRepo) Update(ctx context.Context, userID, id int64, in EventInput) (Event, error) {
	stmt, args, err := t.builder.Update("calendar_events").
		Set("title", in.Title).
		Set("description", in.Description).
		Set("starts_at", in.Start).
		Set("ends_at", in.End).
		Set("all_day", in.AllDay).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING " + strings.Join(eventColumns, ", ")).
		ToSql()
	if err != nil {
		return Event{}, fmt.Errorf("build update event sql: %w", err)
	}
	e, err := scanEvent(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Event{}, notFound(err, id)
	}
	return e, nil
}

func (t *txRepo) Delete(ctx context.Context, userID, id int64) (Event, error) {
	stmt, args, err := t.builder.Delete("calendar_events").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING " + strings.Join(eventColumns, ", ")).
		ToSql()
	if err != nil {
		return Event{}, fmt.Errorf("build delete event sql: %w", err)
	}
	e, err := scanEvent(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Event{}, notFound(err, id)
	}
	return e, nil
}

func (t *txRepo) RecordAudit(ctx context.Context, actorID int64, action, details string) error {
	_, err := t.recorder.RecordTx(ctx, t.tx, actorID, action, details)
	return err
}

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Description, &e.Start, &e.End, &e.AllDay, &e.CreatedAt)
	return e, err
}

// Another user's event is reported as missing.
func notFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	return fmt.Errorf("scan event: %w", err)
}
