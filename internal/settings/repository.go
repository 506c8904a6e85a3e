package settings

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// recordID is the primary key of the only settings row.
const recordID = 1

var settingsColumns = []string{"version", "org_name", "brand_color", "theme", "logo_url", "webhook_url", "api_key", "updated_at"}

// Repository provides PostgreSQL backed persistence.
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

// TxRepository exposes transactional operations.
type TxRepository interface {
	Lock(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings, expectedVersion int64) (Settings, error)
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

// Get returns the current settings.
func (r *Repository) Get(ctx context.Context) (Settings, error) {
	return load(ctx, r.pool, r.builder, false)
}

func (t *txRepo) Lock(ctx context.Context) (Settings, error) {
	return load(ctx, t.tx, t.builder, true)
}

func (t *txRepo) Save(ctx context.Context, s Settings, expectedVersion int64) (Settings, error) {
	stmt, args, err := t.builder.Update("settings").
		Set("org_name", s.OrgName).
		Set("brand_color", s.BrandColor).
		Set("theme", s.Theme).
		Set("logo_url", s.LogoURL).
		Set("webhook_url", s.WebhookURL).
		Set("api_key", s.APIKey).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": recordID, "version": expectedVersion}).
		Suffix("RETURNING version, updated_at").
		ToSql()
	if err != nil {
		return Settings{}, fmt.Errorf("build save settings sql: %w", err)
	}
	if err := t.tx.QueryRow(ctx, stmt, args...).Scan(&s.Version, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, fmt.Errorf("%w: settings changed since version %d", shared.ErrConflict, expectedVersion)
		}
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return s, nil
}

func (t *txRepo) RecordAudit(ctx context.Context, actorID int64, action, details string) error {
	_, err := t.recorder.RecordTx(ctx, t.tx, actorID, action, details)
	return err
}

func load(ctx context.Context, q db.Querier, builder squirrel.StatementBuilderType, lock bool) (Settings, error) {
	query := builder.Select(settingsColumns...).From("settings").Where(squirrel.Eq{"id": recordID})
	if lock {
		query = query.Suffix("FOR UPDATE")
	}
	stmt, args, err := query.ToSql()
	if err != nil {
		return Settings{}, fmt.Errorf("build load settings sql: %w", err)
	}
	var s Settings
	if err := q.QueryRow(ctx, stmt, args...).Scan(&s.Version, &s.OrgName, &s.BrandColor, &s.Theme, &s.LogoURL, &s.WebhookURL, &s.APIKey, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, fmt.Errorf("%w: settings not initialised", shared.ErrNotFound)
		}
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}
