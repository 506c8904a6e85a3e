package news

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

var (
	postColumns = []string{"id", "title", "content", "author_id", "created_at", "updated_at"}
	// feedColumns adds the author, which only reads can join.
	feedColumns = []string{
		"p.id", "p.title", "p.content", "p.author_id", "p.created_at", "p.updated_at",
		"COALESCE(u.name, '')", "COALESCE(u.email, '')",
	}
)

// Repository stores posts in PostgreSQL.
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
	Insert(ctx context.Context, authorID int64, in PostInput) (Post, error)
	Update(ctx context.Context, id int64, in PostInput) (Post, error)
	Delete(ctx context.Context, id int64) (Post, error)
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

func (r *Repository) feed() squirrel.SelectBuilder {
	return r.builder.Select(feedColumns...).
		From("news_posts p").
		LeftJoin("users u ON u.id = p.author_id")
}

// List returns a page of posts, newest first, with the total count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Post, int, error) {
	where := squirrel.And{}
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + search + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"p.title": pattern},
			squirrel.ILike{"p.content": pattern},
		})
	}

	countStmt, countArgs, err := r.builder.Select("COUNT(*)").From("news_posts p").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count news sql: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count news: %w", err)
	}

	stmt, args, err := r.feed().
		Where(where).
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list news sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0, limit)
	for rows.Next() {
		p, err := scanFeedPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan news post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate news: %w", err)
	}
	return posts, total, nil
}

// Get returns a post with its author.
func (r *Repository) Get(ctx context.Context, id int64) (Post, error) {
	stmt, args, err := r.feed().Where(squirrel.Eq{"p.id": id}).ToSql()
	if err != nil {
		return Post{}, fmt.Errorf("build get news sql: %w", err)
	}
	p, err := scanFeedPost(r.pool.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Post{}, notFound(err, id)
	}
	return p, nil
}

func (t *txRepo) Insert(ctx context.Context, authorID int64, in PostInput) (Post, error) {
	stmt, args, err := t.builder.Insert("news_posts").
		Columns("title", "content", "author_id").
		Values(in.Title, in.Content, pgtype.Int8{Int64: authorID, Valid: authorID > 0}).
		Suffix("RETURNING " + strings.Join(postColumns, ", ")).
		ToSql()
	if err != nil {
		return Post{}, fmt.Errorf("build insert news sql: %w", err)
	}
	p, err := scanPost(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Post{}, fmt.Errorf("insert news post: %w", err)
	}
	return p, nil
}

func (t *txRepo) Update(ctx context.Context, id int64, in PostInput) (Post, error) {
	stmt, args, err := t.builder.Update("news_posts").
		Set("title", in.Title).
		Set("content", in.Content).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(postColumns, ", ")).
		ToSql()
	if err != nil {
		return Post{}, fmt.Errorf("build update news sql: %w", err)
	}
	p, err := scanPost(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Post{}, notFound(err, id)
	}
	return p, nil
}

func (t *txRepo) Delete(ctx context.Context, id int64) (Post, error) {
	stmt, args, err := t.builder.Delete("news_posts").
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(postColumns, ", ")).
		ToSql()
	if err != nil {
		return Post{}, fmt.Errorf("build delete news sql: %w", err)
	}
	p, err := scanPost(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Post{}, notFound(err, id)
	}
	return p, nil
}

func (t *txRepo) RecordAudit(ctx context.Context, actorID int64, action, details string) error {
	_, err := t.recorder.RecordTx(ctx, t.tx, actorID, action, details)
	return err
}

func scanPost(row pgx.Row) (Post, error) {
	var (
		p      Post
		author pgtype.Int8
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &author, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Post{}, err
	}
	if author.Valid {
		p.AuthorID = &author.Int64
	}
	return p, nil
}

func scanFeedPost(row pgx.Row) (Post, error) {
	var (
		p      Post
		author pgtype.Int8
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &author, &p.CreatedAt, &p.UpdatedAt, &p.AuthorName, &p.AuthorEmail); err != nil {
		return Post{}, err
	}
	if author.Valid {
		p.AuthorID = &author.Int64
	}
	return p, nil
}

func notFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: news post %d", shared.ErrNotFound, id)
	}
	return fmt.Errorf("scan news post: %w", err)
}
