package notifications

import (
	"context"
	"fmt"

	"github.com/AmirIqbalKhan/dashboard/internal/platform/db"
)

// Selector returns recipient user ids using q, the broadcast transaction.
type Selector func(ctx context.Context, q db.Querier) ([]int64, error)

// ActiveUsers selects every active user.
func ActiveUsers(ctx context.Context, q db.Querier) ([]int64, error) {
	return selectIDs(ctx, q, `SELECT id FROM users WHERE is_active ORDER BY id`)
}

// ActiveUsersWithRole selects active users currently holding roleName.
func ActiveUsersWithRole(roleName string) Selector {
	return func(ctx context.Context, q db.Querier) ([]int64, error) {
		return selectIDs(ctx, q, `SELECT u.id FROM users u
JOIN roles r ON r.id = u.role_id
WHERE u.is_active AND r.name = $1
ORDER BY u.id`, roleName)
	}
}

func selectIDs(ctx context.Context, q db.Querier, stmt string, args ...any) ([]int64, error) {
	rows, err := q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select recipients: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return ids, nil
}
