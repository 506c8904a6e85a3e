package notifications

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/httpx"
	"github.com/AmirIqbalKhan/dashboard/internal/rbac"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// IdempotencyHeader carries the client supplied broadcast key.
const IdempotencyHeader = "Idempotency-Key"

// Handler serves notification endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	binder  *httpx.Binder
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, binder: httpx.NewBinder(), rbac: rbac}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticated())
		r.Get("/", h.inbox)
		r.Patch("/{id}", h.markRead)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(catalog.ManageUsers))
		r.Post("/", h.broadcast)
	})
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		limit = n
	}
	items, err := h.service.ListForUser(r.Context(), principal.UserID, limit)
	if err != nil {
		h.logger.Warn("list notifications", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

type markReadRequest struct {
	Read *bool `json:"read" validate:"required"`
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req markReadRequest
	if err := h.binder.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.MarkRead(r.Context(), principal.UserID, id, *req.Read); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := h.binder.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	selector := Selector(ActiveUsers)
	if role := strings.TrimSpace(req.Role); role != "" {
		selector = ActiveUsersWithRole(role)
	}
	payload := Payload{Title: strings.TrimSpace(req.Title), Message: req.Message, Type: req.Type}

	var opts []BroadcastOption
	if key := r.Header.Get(IdempotencyHeader); key != "" {
		opts = append(opts, WithIdempotencyKey(key))
	}

	principal, _ := shared.PrincipalFromContext(r.Context())
	res, err := h.service.Broadcast(r.Context(), principal.UserID, selector, Static(payload), opts...)
	if err != nil {
		h.logger.Error("broadcast notification", slog.Int64("actor_id", principal.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}
