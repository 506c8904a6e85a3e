package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/platform/httpx"
)

// SessionTransport reads and describes session identifiers on requests.
type SessionTransport interface {
	SessionID(r *http.Request) string
	CookieName() string
	TTL() time.Duration
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	transport SessionTransport
	binder    *httpx.Binder
	secure    bool
}

// NewHandler constructs a Handler instance. secureCookie marks the session cookie Secure.
func NewHandler(logger *slog.Logger, service *Service, transport SessionTransport, secureCookie bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, transport: transport, binder: httpx.NewBinder(), secure: secureCookie}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := h.binder.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, p, err := h.service.Login(r.Context(), in)
	if err != nil {
		h.logger.Warn("login failed", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.transport.CookieName(),
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.transport.TTL().Seconds()),
	})
	httpx.JSON(w, http.StatusOK, loginResponse{Token: id, UserID: p.UserID, Email: p.Email, Role: p.RoleName})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := h.transport.SessionID(r); id != "" {
		if err := h.service.Logout(r.Context(), id); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.transport.CookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
