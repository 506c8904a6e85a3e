package audit

import (
	"context"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Recorder appends audit entries and lists them. It never updates or deletes
// existing entries.
type Recorder struct {
	q       db.Querier
	builder squirrel.StatementBuilderType
}

// NewRecorder constructs a Recorder writing through q when used standalone.
func NewRecorder(q db.Querier) *Recorder {
	return &Recorder{
		q:       q,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Record appends an entry outside of any caller transaction.
func (r *Recorder) Record(ctx context.Context, actorID int64, action, details string) (Entry, error) {
	return r.RecordTx(ctx, r.q, actorID, action, details)
}

// RecordTx appends an entry using q, which is normally the caller's
// transaction so that the entry commits or rolls back with the mutation it
// describes. An actorID of zero stores a NULL actor.
func (r *Recorder) RecordTx(ctx context.Context, q db.Querier, actorID int64, action, details string) (Entry, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return Entry{}, fmt.Errorf("%w: audit action required", shared.ErrValidation)
	}
	actor := pgtype.Int8{Int64: actorID, Valid: actorID > 0}
	text := pgtype.Text{String: details, Valid: details != ""}

	stmt, args, err := r.builder.Insert("audit_log").
		Columns("user_id", "action", "details").
		Values(actor, action, text).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return Entry{}, fmt.Errorf("build insert audit sql: %w", err)
	}

	entry := Entry{Action: action, Details: details}
	if actor.Valid {
		id := actorID
		entry.ActorID = &id
	}
	if err := q.QueryRow(ctx, stmt, args...).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return entry, nil
}

// List returns entries matching filters, newest first.
func (r *Recorder) List(ctx context.Context, filters Filters) ([]Entry, error) {
	query := r.builder.Select(
		"a.id",
		"a.user_id",
		"COALESCE(u.email, '')",
		"a.action",
		"COALESCE(a.details, '')",
		"a.created_at",
	).
		From("audit_log a").
		LeftJoin("users u ON u.id = a.user_id").
		OrderBy("a.created_at DESC", "a.id DESC").
		Limit(uint64(filters.limit()))

	if filters.ActorID > 0 {
		query = query.Where(squirrel.Eq{"a.user_id": filters.ActorID})
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		query = query.Where(squirrel.Eq{"a.action": action})
	}
	if !filters.From.IsZero() {
		query = query.Where(squirrel.GtOrEq{"a.created_at": filters.From})
	}
	if !filters.To.IsZero() {
		query = query.Where(squirrel.LtOrEq{"a.created_at": filters.To})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit sql: %w", err)
	}
	rows, err := r.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e     Entry
			actor pgtype.Int8
		)
		if err := rows.Scan(&e.ID, &actor, &e.ActorEmail, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if actor.Valid {
			id := actor.Int64
			e.ActorID = &id
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
