package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/fanout"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

const idempotencyModule = "notifications.broadcast"

// Dispatcher publishes committed broadcasts to background workers.
type Dispatcher interface {
	EnqueueNotificationBroadcast(ctx context.Context, event BroadcastEvent) error
}

// Service owns notification writes and inbox reads.
type Service struct {
	q          db.Querier
	engine     *fanout.Engine
	idem       *shared.IdempotencyStore
	dispatcher Dispatcher
	logger     *slog.Logger
	builder    squirrel.StatementBuilderType
	now        func() time.Time
}

// NewService builds Service instance. idem and dispatcher may be nil.
func NewService(q db.Querier, engine *fanout.Engine, idem *shared.IdempotencyStore, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		q:          q,
		engine:     engine,
		idem:       idem,
		dispatcher: dispatcher,
		logger:     logger,
		builder:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:        time.Now,
	}
}

type broadcastOptions struct {
	idempotencyKey string
}

// BroadcastOption customises a broadcast.
type BroadcastOption func(*broadcastOptions)

// WithIdempotencyKey makes the broadcast run at most once for key.
func WithIdempotencyKey(key string) BroadcastOption {
	return func(o *broadcastOptions) { o.idempotencyKey = strings.TrimSpace(key) }
}

// Broadcast writes one notification per selected user and a single
// CREATE_NOTIFICATION audit entry in one transaction. It returns
// shared.ErrEmptyTargetSet when selector matches nobody.
func (s *Service) Broadcast(ctx context.Context, actorID int64, selector Selector, build PayloadBuilder, opts ...BroadcastOption) (BroadcastResult, error) {
	if selector == nil || build == nil {
		return BroadcastResult{}, fmt.Errorf("%w: selector and payload builder required", shared.ErrValidation)
	}
	var o broadcastOptions
	for _, opt := range opts {
		opt(&o)
	}

	var title string
	plan := fanout.Plan{
		ActorID: actorID,
		Action:  audit.ActionCreateNotification,
		Select:  selector,
		Write: func(ctx context.Context, q db.Querier, userID int64) error {
			p := build(userID)
			if strings.TrimSpace(p.Title) == "" {
				return fmt.Errorf("%w: notification title required", shared.ErrValidation)
			}
			if p.Type == "" {
				p.Type = TypeSystem
			}
			if title == "" {
				title = p.Title
			}
			_, err := q.Exec(ctx, `INSERT INTO notifications (user_id, title, message, type) VALUES ($1, $2, $3, $4)`,
				userID, p.Title, p.Message, p.Type)
			return err
		},
		Describe: func(count int) string {
			return fmt.Sprintf("Created notification %q for %d users", title, count)
		},
	}
	if o.idempotencyKey != "" {
		key := o.idempotencyKey
		plan.Claim = func(ctx context.Context, q db.Querier) error {
			return s.idem.Claim(ctx, q, key, idempotencyModule)
		}
	}

	res, err := s.engine.Run(ctx, plan)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("broadcast notification: %w", err)
	}
	out := BroadcastResult{Count: res.Count, Audit: res.Audit, Title: title}
	s.dispatch(ctx, actorID, out)
	return out, nil
}

// dispatch runs after commit. Failures never undo the broadcast.
func (s *Service) dispatch(ctx context.Context, actorID int64, res BroadcastResult) {
	if s.dispatcher == nil {
		return
	}
	event := BroadcastEvent{AuditID: res.Audit.ID, ActorID: actorID, Title: res.Title, Count: res.Count, At: s.now().UTC()}
	if err := s.dispatcher.EnqueueNotificationBroadcast(ctx, event); err != nil {
		s.logger.Warn("enqueue broadcast event", slog.Int64("audit_id", res.Audit.ID), slog.Any("error", err))
	}
}

// ListForUser returns the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	if userID <= 0 {
		return nil, shared.ErrUnauthorized
	}
	switch {
	case limit <= 0:
		limit = DefaultInboxLimit
	case limit > MaxInboxLimit:
		limit = MaxInboxLimit
	}
	stmt, args, err := s.builder.Select("id", "user_id", "title", "COALESCE(message, '')", "type", "read", "created_at").
		From("notifications").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list notifications sql: %w", err)
	}
	rows, err := s.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// MarkRead sets the read flag of a notification owned by userID. Notifications
// owned by someone else are reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id int64, read bool) error {
	if userID <= 0 {
		return shared.ErrUnauthorized
	}
	stmt, args, err := s.builder.Update("notifications").
		Set("read", read).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark read sql: %w", err)
	}
	tag, err := s.q.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: notification %d", shared.ErrNotFound, id)
	}
	return nil
}
