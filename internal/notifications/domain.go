package notifications

import (
	"time"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
)

// Notification types.
const (
	TypeSystem  = "system"
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeSuccess = "success"
)

const (
	// DefaultInboxLimit is the number of notifications listed when no limit is given.
	DefaultInboxLimit = 10
	// MaxInboxLimit caps an inbox listing.
	MaxInboxLimit = 50
)

// Notification is a message delivered to one user.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payload is the content written for one recipient.
type Payload struct {
	Title   string
	Message string
	Type    string
}

// PayloadBuilder produces the payload for a recipient.
type PayloadBuilder func(userID int64) Payload

// Static returns a builder that sends the same payload to everyone.
func Static(p Payload) PayloadBuilder {
	return func(int64) Payload { return p }
}

// BroadcastRequest is the body of a broadcast call.
type BroadcastRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=2000"`
	Type    string `json:"type" validate:"omitempty,oneof=system info warning success"`
	// Role restricts recipients to active users holding this role.
	Role string `json:"role" validate:"omitempty,max=64"`
}

// BroadcastResult reports a committed broadcast and the audit entry written
// with it.
type BroadcastResult struct {
	Count int         `json:"count"`
	Audit audit.Entry `json:"auditEntry"`
	Title string      `json:"title"`
}

// BroadcastEvent is published after a broadcast commits.
type BroadcastEvent struct {
	AuditID int64     `json:"auditId"`
	ActorID int64     `json:"actorId"`
	Title   string    `json:"title"`
	Count   int       `json:"count"`
	At      time.Time `json:"at"`
}
