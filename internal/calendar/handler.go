package calendar

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/httpx"
	"github.com/AmirIqbalKhan/dashboard/internal/rbac"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Handler serves calendar endpoints for the calling user.
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

// MountRoutes registers event routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(catalog.ViewCalendar)).Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(catalog.ManageCalendar))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	events, err := h.service.List(r.Context(), principal.UserID, rng)
	if err != nil {
		h.logger.Error("list events failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in EventInput
	if err := h.binder.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	e, err := h.service.Create(r.Context(), principal.UserID, in)
	if err != nil {
		h.logger.Warn("create event failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in EventInput
	if err := h.binder.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	e, err := h.service.Update(r.Context(), principal.UserID, id, in)
	if err != nil {
		h.logger.Warn("update event failed", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal.UserID, id); err != nil {
		h.logger.Warn("delete event failed", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseRange(r *http.Request) (Range, error) {
	var rng Range
	for key, dst := range map[string]*time.Time{"from": &rng.From, "to": &rng.To} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s must be RFC 3339", shared.ErrValidation, key)
		}
		*dst = t
	}
	return rng, nil
}
