package calendar

import (
	"context"
	"fmt"
	"strings"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// RepositoryPort defines data access methods for events.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, userID int64, rng Range) ([]Event, error)
}

// Service manages personal calendars. Users only ever see and change their
// own events.
type Service struct {
	repo RepositoryPort
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns the caller's events overlapping rng.
func (s *Service) List(ctx context.Context, userID int64, rng Range) ([]Event, error) {
	if userID <= 0 {
		return nil, shared.ErrUnauthorized
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return nil, fmt.Errorf("%w: range ends before it starts", shared.ErrValidation)
	}
	return s.repo.List(ctx, userID, rng)
}

// Create adds an event to userID's calendar.
func (s *Service) Create(ctx context.Context, userID int64, in EventInput) (Event, error) {
	if userID <= 0 {
		return Event{}, shared.ErrUnauthorized
	}
	in, err := normalize(in)
	if err != nil {
		return Event{}, err
	}
	var created Event
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Insert(ctx, userID, in)
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, userID, audit.ActionCreateEvent, describe("Created", e)); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, userID, id int64, in EventInput) (Event, error) {
	if userID <= 0 {
		return Event{}, shared.ErrUnauthorized
	}
	if id <= 0 {
		return Event{}, fmt.Errorf("%w: invalid event id", shared.ErrValidation)
	}
	in, err := normalize(in)
	if err != nil {
		return Event{}, err
	}
	var updated Event
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Update(ctx, userID, id, in)
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, userID, audit.ActionUpdateEvent, describe("Updated", e)); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return Event{}, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if userID <= 0 {
		return shared.ErrUnauthorized
	}
	if id <= 0 {
		return fmt.Errorf("%w: invalid event id", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Delete(ctx, userID, id)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, userID, audit.ActionDeleteEvent, describe("Deleted", e))
	})
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func describe(verb string, e Event) string {
	return fmt.Sprintf("%s event %q on %s", verb, e.Title, e.Start.UTC().Format("2006-01-02"))
}

func normalize(in EventInput) (EventInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return in, fmt.Errorf("%w: event title is required", shared.ErrValidation)
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return in, fmt.Errorf("%w: event start and end are required", shared.ErrValidation)
	}
	if in.End.Before(in.Start) {
		return in, fmt.Errorf("%w: event ends before it starts", shared.ErrValidation)
	}
	in.Start, in.End = in.Start.UTC(), in.End.UTC()
	return in, nil
}
