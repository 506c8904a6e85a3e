package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore resolves principals from sessions written to Redis by the
// identity provider.
type SessionStore struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
}

type sessionPayload struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, cookieName string, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, cookieName: cookieName, ttl: ttl}
}

// Resolve returns the principal for the request. The boolean is false when the
// request carries no session or the session is unknown or expired.
func (s *SessionStore) Resolve(ctx context.Context, r *http.Request) (Principal, bool, error) {
	id := s.SessionID(r)
	if id == "" {
		return Principal{}, false, nil
	}
	raw, err := s.client.Get(ctx, s.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Principal{}, false, nil
		}
		return Principal{}, false, fmt.Errorf("shared: load session: %w", err)
	}
	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Principal{}, false, fmt.Errorf("shared: decode session: %w", err)
	}
	p := Principal{UserID: stored.UserID, Email: stored.Email, RoleName: stored.Role}
	if p.Anonymous() {
		return Principal{}, false, nil
	}
	return p, true, nil
}

// Put writes a session for the principal and returns its identifier.
func (s *SessionStore) Put(ctx context.Context, p Principal) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(sessionPayload{UserID: p.UserID, Email: p.Email, Role: p.RoleName})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.redisKey(id), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("shared: store session: %w", err)
	}
	return id, nil
}

// Revoke deletes a session.
func (s *SessionStore) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL returns the session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (s *SessionStore) CookieName() string {
	return s.cookieName
}

// SessionID extracts the session identifier from the bearer token or cookie.
func (s *SessionStore) SessionID(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *SessionStore) redisKey(id string) string {
	return "session:" + id
}
