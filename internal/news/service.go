package news

import (
	"context"
	"fmt"
	"strings"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// RepositoryPort defines data access methods for posts.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]Post, int, error)
	Get(ctx context.Context, id int64) (Post, error)
}

// Service publishes and curates the news feed.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns a page of the feed.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Post, shared.Pagination, error) {
	page, perPage := shared.NormalizePage(filters.Page, filters.PerPage, 20, 100)
	offset := shared.Pagination{Page: page, PerPage: perPage}.Offset()
	items, total, err := s.repo.List(ctx, filters, perPage, offset)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

func (s *Service) Get(ctx context.Context, id int64) (Post, error) {
	if id <= 0 {
		return Post{}, fmt.Errorf("%w: invalid news post id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Publish creates a post authored by actorID.
func (s *Service) Publish(ctx context.Context, actorID int64, in PostInput) (Post, error) {
	in, err := normalize(in)
	if err != nil {
		return Post{}, err
	}
	var created Post
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Insert(ctx, actorID, in)
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, actorID, audit.ActionCreateNews, fmt.Sprintf("Published news %q", p.Title)); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return Post{}, fmt.Errorf("publish news: %w", err)
	}
	return created, nil
}

// Update rewrites a post. The author is unchanged.
func (s *Service) Update(ctx context.Context, actorID, id int64, in PostInput) (Post, error) {
	if id <= 0 {
		return Post{}, fmt.Errorf("%w: invalid news post id", shared.ErrValidation)
	}
	in, err := normalize(in)
	if err != nil {
		return Post{}, err
	}
	var updated Post
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Update(ctx, id, in)
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, actorID, audit.ActionUpdateNews, fmt.Sprintf("Updated news %q", p.Title)); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return Post{}, fmt.Errorf("update news: %w", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid news post id", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.Delete(ctx, id)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, actorID, audit.ActionDeleteNews, fmt.Sprintf("Deleted news %q", p.Title))
	})
	if err != nil {
		return fmt.Errorf("delete news: %w", err)
	}
	return nil
}

func normalize(in PostInput) (PostInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if in.Title == "" || in.Content == "" {
		return in, fmt.Errorf("%w: title and content are required", shared.ErrValidation)
	}
	return in, nil
}
