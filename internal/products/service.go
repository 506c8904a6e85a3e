package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// RepositoryPort defines data access methods for products.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
}

// Service handles product business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, shared.Pagination, error) {
	page, perPage := shared.NormalizePage(filters.Page, filters.PerPage, 20, 100)
	offset := shared.Pagination{Page: page, PerPage: perPage}.Offset()
	items, total, err := s.repo.List(ctx, filters, perPage, offset)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Create inserts a product and records it in the audit log.
func (s *Service) Create(ctx context.Context, actorID int64, in ProductInput) (Product, error) {
	in, err := normalize(in)
	if err != nil {
		return Product{}, err
	}
	var created Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, actorID, audit.ActionCreateProduct, fmt.Sprintf("Created product %q (%s)", p.Name, p.SKU)); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// Update replaces the writable fields of a product.
func (s *Service) Update(ctx context.Context, actorID, id int64, in ProductInput) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	in, err := normalize(in)
	if err != nil {
		return Product{}, err
	}
	var updated Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Update(ctx, id, in)
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, actorID, audit.ActionUpdateProduct, fmt.Sprintf("Updated product %q (%s)", p.Name, p.SKU)); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return updated, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Delete(ctx, id)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, actorID, audit.ActionDeleteProduct, fmt.Sprintf("Deleted product %q (%s)", p.Name, p.SKU))
	})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func normalize(in ProductInput) (ProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return in, fmt.Errorf("%w: product name is required", shared.ErrValidation)
	}
	if in.SKU == "" {
		return in, fmt.Errorf("%w: product sku is required", shared.ErrValidation)
	}
	if in.Price < 0 || in.Stock < 0 {
		return in, fmt.Errorf("%w: price and stock must not be negative", shared.ErrValidation)
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if in.Images == nil {
		in.Images = []string{}
	}
	return in, nil
}
