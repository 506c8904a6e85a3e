// Package fanout writes one row per target and a single audit entry inside
// one transaction. Either every write and the audit entry commit, or none do.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Plan describes a fan-out. Claim is optional.
type Plan struct {
	ActorID int64
	Action  string
	// Claim runs first, typically to record an idempotency key.
	Claim func(ctx context.Context, q db.Querier) error
	// Select returns the targets as seen by the transaction snapshot.
	Select func(ctx context.Context, q db.Querier) ([]int64, error)
	// Write persists the row for one target.
	Write func(ctx context.Context, q db.Querier, target int64) error
	// Describe builds the audit details for count targets.
	Describe func(count int) string
}

// Result reports a committed fan-out.
type Result struct {
	Count int         `json:"count"`
	Audit audit.Entry `json:"audit"`
}

// Observer is notified of every finished run.
type Observer interface {
	ObserveFanout(action string, count int, err error)
}

// Engine executes plans.
type Engine struct {
	pool     db.TxStarter
	recorder *audit.Recorder
	observer Observer
}

// NewEngine constructs an Engine. observer may be nil.
func NewEngine(pool db.TxStarter, recorder *audit.Recorder, observer Observer) *Engine {
	return &Engine{pool: pool, recorder: recorder, observer: observer}
}

// Run executes plan in a single repeatable-read transaction. An empty target
// set returns shared.ErrEmptyTargetSet; any write or audit failure returns
// shared.ErrTransaction. In both cases nothing is committed.
func (e *Engine) Run(ctx context.Context, plan Plan) (Result, error) {
	if err := plan.validate(); err != nil {
		return Result{}, err
	}

	var result Result
	err := db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		if plan.Claim != nil {
			if err := plan.Claim(ctx, tx); err != nil {
				return err
			}
		}
		targets, err := plan.Select(ctx, tx)
		if err != nil {
			return fmt.Errorf("%w: select targets: %w", shared.ErrTransaction, err)
		}
		if len(targets) == 0 {
			return shared.ErrEmptyTargetSet
		}
		for _, target := range targets {
			if err := plan.Write(ctx, tx, target); err != nil {
				// Validation failures are returned to callers verbatim and
				// must not name a recipient.
				if errors.Is(err, shared.ErrValidation) {
					return err
				}
				return fmt.Errorf("%w: write target %d: %w", shared.ErrTransaction, target, err)
			}
		}
		entry, err := e.recorder.RecordTx(ctx, tx, plan.ActorID, plan.Action, plan.Describe(len(targets)))
		if err != nil {
			return fmt.Errorf("%w: record audit: %w", shared.ErrTransaction, err)
		}
		result = Result{Count: len(targets), Audit: entry}
		return nil
	})
	if e.observer != nil {
		e.observer.ObserveFanout(plan.Action, result.Count, err)
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (p Plan) validate() error {
	var missing []string
	if strings.TrimSpace(p.Action) == "" {
		missing = append(missing, "action")
	}
	if p.Select == nil {
		missing = append(missing, "select")
	}
	if p.Write == nil {
		missing = append(missing, "write")
	}
	if p.Describe == nil {
		missing = append(missing, "describe")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: fanout plan missing %s", shared.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Outcome classifies a Run error for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, shared.ErrEmptyTargetSet):
		return "empty"
	case errors.Is(err, shared.ErrConflict):
		return "duplicate"
	default:
		return "failed"
	}
}
