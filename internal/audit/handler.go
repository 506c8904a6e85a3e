package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/platform/httpx"
	"github.com/AmirIqbalKhan/dashboard/internal/rbac"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

// Service is the contract the HTTP layer needs from the recorder.
type Service interface {
	Record(ctx context.Context, actorID int64, action, details string) (Entry, error)
	List(ctx context.Context, filters Filters) ([]Entry, error)
}

// Handler serves audit log endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	binder  *httpx.Binder
	rbac    rbac.Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, binder: httpx.NewBinder(), rbac: rbac}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(catalog.ViewAuditLogs))
		r.Get("/", h.list)
		r.Get("/export.csv", h.export)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(catalog.ManageAuditLogs))
		r.Post("/", h.annotate)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-log.csv\"")
	if err := WriteCSV(w, entries); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

type annotateRequest struct {
	Action  string `json:"action" validate:"omitempty,max=64"`
	Details string `json:"details" validate:"required,max=2000"`
}

func (h *Handler) annotate(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var req annotateRequest
	if err := h.binder.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	action := strings.ToUpper(strings.TrimSpace(req.Action))
	if action == "" {
		action = ActionAnnotate
	}
	if action != ActionAnnotate && !strings.HasPrefix(action, AnnotatePrefix) {
		httpx.RespondError(w, fmt.Errorf("%w: annotation action must be %s or start with %s", shared.ErrValidation, ActionAnnotate, AnnotatePrefix))
		return
	}
	entry, err := h.service.Record(r.Context(), principal.UserID, action, req.Details)
	if err != nil {
		h.logger.Error("record audit annotation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	var filters Filters
	if raw := strings.TrimSpace(q.Get("userId")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Filters{}, fmt.Errorf("%w: invalid userId", shared.ErrValidation)
		}
		filters.ActorID = id
	}
	filters.Action = strings.TrimSpace(q.Get("action"))
	var err error
	if filters.From, err = parseTime(q.Get("startDate"), false); err != nil {
		return Filters{}, err
	}
	if filters.To, err = parseTime(q.Get("endDate"), true); err != nil {
		return Filters{}, err
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return Filters{}, fmt.Errorf("%w: endDate before startDate", shared.ErrValidation)
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: invalid limit", shared.ErrValidation)
		}
		filters.Limit = limit
	}
	return filters, nil
}

// parseTime accepts RFC3339 or a calendar date. A date used as an upper bound
// covers the whole day.
func parseTime(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
