package audit

import "time"

// Actions recorded by the dashboard.
const (
	ActionCreateRole         = "CREATE_ROLE"
	ActionUpdateRole         = "UPDATE_ROLE"
	ActionDeleteRole         = "DELETE_ROLE"
	ActionCreateUser         = "CREATE_USER"
	ActionSignup             = "SIGNUP"
	ActionAssignRole         = "ASSIGN_ROLE"
	ActionSetUserStatus      = "SET_USER_STATUS"
	ActionCreateNotification = "CREATE_NOTIFICATION"
	ActionCreateProduct      = "CREATE_PRODUCT"
	ActionUpdateProduct      = "UPDATE_PRODUCT"
	ActionDeleteProduct      = "DELETE_PRODUCT"
	ActionUpdateSettings     = "UPDATE_SETTINGS"
	ActionCreateNews         = "CREATE_NEWS"
	ActionUpdateNews         = "UPDATE_NEWS"
	ActionDeleteNews         = "DELETE_NEWS"
	ActionCreateEvent        = "CREATE_EVENT"
	ActionUpdateEvent        = "UPDATE_EVENT"
	ActionDeleteEvent        = "DELETE_EVENT"
	ActionAnnotate           = "ANNOTATE"
)

// AnnotatePrefix namespaces manual annotations such as ANNOTATE_REVIEW.
const AnnotatePrefix = ActionAnnotate + "_"

const (
	// DefaultLimit is the page size used when a listing does not ask for one.
	DefaultLimit = 100
	// MaxLimit caps every listing.
	MaxLimit = 100
)

// Entry is an append-only record of a privileged action.
type Entry struct {
	ID         int64     `json:"id"`
	ActorID    *int64    `json:"userId"`
	ActorEmail string    `json:"userEmail,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Filters narrows an audit listing. Zero values are ignored; From and To are inclusive.
type Filters struct {
	ActorID int64
	Action  string
	From    time.Time
	To      time.Time
	Limit   int
}

func (f Filters) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}
