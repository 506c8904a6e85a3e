package products

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

var productColumns = []string{"id", "name", "description", "sku", "price", "stock", "category", "status", "images", "created_at", "updated_at"}

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
	Insert(ctx context.Context, in ProductInput) (Product, error)
	Update(ctx context.Context, id int64, in ProductInput) (Product, error)
	Delete(ctx context.Context, id int64) (Product, error)
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

// List returns a page of products, newest first, with the total count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Product, int, error) {
	where := squirrel.And{}
	if c := strings.TrimSpace(filters.Category); c != "" {
		where = append(where, squirrel.Eq{"category": c})
	}
	if s := strings.TrimSpace(filters.Status); s != "" {
		where = append(where, squirrel.Eq{"status": s})
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + search + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"sku": pattern},
		})
	}

	countStmt, countArgs, err := r.builder.Select("COUNT(*)").From("products").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count products sql: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countStmt, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	stmt, args, err := r.builder.Select(productColumns...).
		From("products").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list products sql: %w", err)
	}
	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate products: %w", err)
	}
	return products, total, nil
}

// Get returns a product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	stmt, args, err := r.builder.Select(productColumns...).From("products").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("build get product sql: %w", err)
	}
	p, err := scanProduct(r.pool.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Product{}, notFound(err, id)
	}
	return p, nil
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) Insert(ctx context.Context, in ProductInput) (Product, error) {
	stmt, args, err := t.builder.Insert("products").
		Columns("name", "description", "sku", "price", "stock", "category", "status", "images").
		Values(in.Name, in.Description, in.SKU, in.Price, in.Stock, in.Category, in.Status, in.Images).
		Suffix("RETURNING " + strings.Join(productColumns, ", ")).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("build insert product sql: %w", err)
	}
	p, err := scanProduct(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Product{}, skuConflict(err, in.SKU)
	}
	return p, nil
}

func (t *txRepo) Update(ctx context.Context, id int64, in ProductInput) (Product, error) {
	stmt, args, err := t.builder.Update("products").
		SetMap(map[string]any{
			"name":        in.Name,
			"description": in.Description,
			"sku":         in.SKU,
			"price":       in.Price,
			"stock":       in.Stock,
			"category":    in.Category,
			"status":      in.Status,
			"images":      in.Images,
			"updated_at":  squirrel.Expr("NOW()"),
		}).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(productColumns, ", ")).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("build update product sql: %w", err)
	}
	p, err := scanProduct(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(err, id)
		}
		return Product{}, skuConflict(err, in.SKU)
	}
	return p, nil
}

func (t *txRepo) Delete(ctx context.Context, id int64) (Product, error) {
	stmt, args, err := t.builder.Delete("products").
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(productColumns, ", ")).
		ToSql()
	if err != nil {
		return Product{}, fmt.Errorf("build delete product sql: %w", err)
	}
	p, err := scanProduct(t.tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		return Product{}, notFound(err, id)
	}
	return p, nil
}

func (t *txRepo) RecordAudit(ctx context.Context, actorID int64, action, details string) error {
	_, err := t.recorder.RecordTx(ctx, t.tx, actorID, action, details)
	return err
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.Price, &p.Stock, &p.Category, &p.Status, &p.Images, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return p, nil
}

func notFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return fmt.Errorf("scan product: %w", err)
}

func skuConflict(err error, sku string) error {
	if db.IsUniqueViolation(err, "") {
		return fmt.Errorf("%w: sku %q already exists", shared.ErrConflict, sku)
	}
	return fmt.Errorf("write product: %w", err)
}
