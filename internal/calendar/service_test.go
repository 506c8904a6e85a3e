package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/rbac"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

var (
	columns = []string{"id", "user_id", "title", "description", "starts_at", "ends_at", "all_day", "created_at"}
	start   = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	end     = start.Add(time.Hour)
)

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewService(NewRepository(mock, audit.NewRecorder(mock))), mock
}

func eventRow(id, userID int64, title string) *pgxmock.Rows {
	return pgxmock.NewRows(columns).AddRow(id, userID, title, "", start, end, false, time.Now())
}

func expectAudit(mock pgxmock.PgxPoolIface, actor int64, action, details string) {
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgtype.Int8{Int64: actor, Valid: true}, action, pgtype.Text{String: details, Valid: true}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
}

func TestCreateEventIsAuditedForOwner(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`INSERT INTO calendar_events \(user_id,title,description,starts_at,ends_at,all_day\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6\) RETURNING id, user_id`).
		WithArgs(int64(4), "Standup", "", start, end, false).
		WillReturnRows(eventRow(21, 4, "Standup"))
	expectAudit(mock, 4, audit.ActionCreateEvent, `Created event "Standup" on 2026-05-04`)
	mock.ExpectCommit()

	e, err := svc.Create(context.Background(), 4, EventInput{Title: " Standup ", Start: start, End: end})
	require.NoError(t, err)
	assert.Equal(t, int64(21), e.ID)
	assert.Equal(t, int64(4), e.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEventRollsBackWhenAuditFails(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`INSERT INTO calendar_events`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(eventRow(21, 4, "Standup"))
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), 4, EventInput{Title: "Standup", Start: start, End: end})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEventValidation(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.Create(context.Background(), 4, EventInput{Title: "Backwards", Start: end, End: start})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(context.Background(), 4, EventInput{Title: "No times"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(context.Background(), 0, EventInput{Title: "Anonymous", Start: start, End: end})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOtherUsersEventIsNotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`DELETE FROM calendar_events WHERE .*id = \$1 AND user_id = \$2.* RETURNING`).
		WithArgs(int64(21), int64(5)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	assert.ErrorIs(t, svc.Delete(context.Background(), 5, 21), shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEvent(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`UPDATE calendar_events SET title = \$1, description = \$2, starts_at = \$3, ends_at = \$4, all_day = \$5 WHERE .*id = \$6 AND user_id = \$7`).
		WithArgs("Retro", "Sprint 9", start, end, true, int64(21), int64(4)).
		WillReturnRows(eventRow(21, 4, "Retro"))
	expectAudit(mock, 4, audit.ActionUpdateEvent, `Updated event "Retro" on 2026-05-04`)
	mock.ExpectCommit()

	e, err := svc.Update(context.Background(), 4, 21, EventInput{Title: "Retro", Description: "Sprint 9", Start: start, End: end, AllDay: true})
	require.NoError(t, err)
	assert.Equal(t, "Retro", e.Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListIsScopedToOwner(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM calendar_events WHERE \(user_id = \$1 AND ends_at >= \$2\) ORDER BY starts_at ASC, id ASC LIMIT 500`).
		WithArgs(int64(4), start).
		WillReturnRows(eventRow(21, 4, "Standup"))

	events, err := svc.List(context.Background(), 4, Range{From: start})
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = svc.List(context.Background(), 4, Range{From: end, To: start})
	assert.ErrorIs(t, err, shared.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

type roleAuthorizer map[string][]string

func (a roleAuthorizer) Authorize(ctx context.Context, p shared.Principal, capability string) bool {
	for _, c := range a[p.RoleName] {
		if c == capability {
			return true
		}
	}
	return false
}

func TestHandlerGuardsByCalendarCapabilities(t *testing.T) {
	svc, mock := newTestService(t)
	authz := roleAuthorizer{}
	for _, tmpl := range catalog.DefaultRoles() {
		authz[tmpl.Name] = tmpl.Permissions
	}
	router := chi.NewRouter()
	router.Route("/events", NewHandler(nil, svc, rbac.Middleware{Authorizer: authz}).MountRoutes)

	send := func(method, path, role, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 4, RoleName: role}))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	body := `{"title":"Standup","start":"2026-05-04T09:00:00Z","end":"2026-05-04T10:00:00Z"}`
	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/events/", "user", body).Code)
	assert.Equal(t, http.StatusBadRequest, send(http.MethodGet, "/events/?from=yesterday", "user", "").Code)

	mock.ExpectQuery(`FROM calendar_events WHERE \(user_id = \$1\)`).
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows(columns))
	rr := send(http.MethodGet, "/events/", "user", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"events":[]}`, rr.Body.String())

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`INSERT INTO calendar_events`).
		WithArgs(int64(4), "Standup", "", start, end, false).
		WillReturnRows(eventRow(21, 4, "Standup"))
	expectAudit(mock, 4, audit.ActionCreateEvent, `Created event "Standup" on 2026-05-04`)
	mock.ExpectCommit()
	assert.Equal(t, http.StatusCreated, send(http.MethodPost, "/events/", "manager", body).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
