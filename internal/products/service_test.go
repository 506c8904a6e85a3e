package products

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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmirIqbalKhan/dashboard/internal/audit"
	"github.com/AmirIqbalKhan/dashboard/internal/catalog"
	"github.com/AmirIqbalKhan/dashboard/internal/rbac"
	"github.com/AmirIqbalKhan/dashboard/internal/shared"
)

var columns = []string{"id", "name", "description", "sku", "price", "stock", "category", "status", "images", "created_at", "updated_at"}

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewService(NewRepository(mock, audit.NewRecorder(mock))), mock
}

func productRow(id int64, name, sku string) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(columns).
		AddRow(id, name, "", sku, 19.99, 5, "tools", StatusActive, []string{}, now, now)
}

func expectAudit(mock pgxmock.PgxPoolIface, actor int64, action, details string) {
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgtype.Int8{Int64: actor, Valid: true}, action, pgtype.Text{String: details, Valid: true}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
}

func TestCreateProductIsAudited(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`INSERT INTO products \(name,description,sku,price,stock,category,status,images\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\) RETURNING id, name`).
		WithArgs("Hammer", "", "HM-1", 19.99, 5, "tools", StatusActive, []string{}).
		WillReturnRows(productRow(7, "Hammer", "HM-1"))
	expectAudit(mock, 2, audit.ActionCreateProduct, `Created product "Hammer" (HM-1)`)
	mock.ExpectCommit()

	p, err := svc.Create(context.Background(), 2, ProductInput{Name: " Hammer ", SKU: "hm-1", Price: 19.99, Stock: 5, Category: "tools"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`INSERT INTO products`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), 2, ProductInput{Name: "Hammer", SKU: "HM-1"})
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductRollsBackWhenAuditFails(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`INSERT INTO products`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(productRow(7, "Hammer", "HM-1"))
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), 2, ProductInput{Name: "Hammer", SKU: "HM-1"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductValidation(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.Create(context.Background(), 2, ProductInput{Name: "Hammer"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(context.Background(), 2, ProductInput{Name: "Hammer", SKU: "HM-1", Price: -1})
	assert.ErrorIs(t, err, shared.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProduct(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`UPDATE products SET category = \$1, description = \$2, images = \$3, name = \$4, price = \$5, sku = \$6, status = \$7, stock = \$8, updated_at = NOW\(\) WHERE id = \$9 RETURNING`).
		WithArgs("tools", "", []string{}, "Hammer XL", 25.0, "HM-1", StatusDraft, 1, int64(7)).
		WillReturnRows(productRow(7, "Hammer XL", "HM-1"))
	expectAudit(mock, 2, audit.ActionUpdateProduct, `Updated product "Hammer XL" (HM-1)`)
	mock.ExpectCommit()

	p, err := svc.Update(context.Background(), 2, 7, ProductInput{Name: "Hammer XL", SKU: "HM-1", Price: 25, Stock: 1, Category: "tools", Status: StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, "Hammer XL", p.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingProduct(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`UPDATE products`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), 2, 99, ProductInput{Name: "Ghost", SKU: "G-1"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProduct(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`DELETE FROM products WHERE id = \$1 RETURNING`).
		WithArgs(int64(7)).
		WillReturnRows(productRow(7, "Hammer", "HM-1"))
	expectAudit(mock, 2, audit.ActionDeleteProduct, `Deleted product "Hammer" (HM-1)`)
	mock.ExpectCommit()

	require.NoError(t, svc.Delete(context.Background(), 2, 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsNewestFirst(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM products WHERE \(category = \$1 AND status = \$2\)`).
		WithArgs("tools", StatusActive).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM products WHERE \(category = \$1 AND status = \$2\) ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0`).
		WithArgs("tools", StatusActive).
		WillReturnRows(productRow(7, "Hammer", "HM-1"))

	items, page, err := svc.List(context.Background(), ListFilters{Category: "tools", Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, shared.Pagination{Page: 1, PerPage: 20, Total: 1, TotalPages: 1}, page)
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

func TestHandlerGuardsMutations(t *testing.T) {
	svc, mock := newTestService(t)
	authz := roleAuthorizer{
		"admin": {catalog.ViewProducts, catalog.ManageProducts},
		"user":  {catalog.ViewProducts},
	}
	router := chi.NewRouter()
	router.Route("/products", NewHandler(nil, svc, rbac.Middleware{Authorizer: authz}).MountRoutes)

	send := func(method, path, role, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 2, RoleName: role}))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusForbidden, send(http.MethodPost, "/products/", "user", `{"name":"x","sku":"y"}`))
	assert.Equal(t, http.StatusForbidden, send(http.MethodDelete, "/products/7", "user", ""))
	assert.Equal(t, http.StatusBadRequest, send(http.MethodPost, "/products/", "admin", `{"name":"x","sku":"y","status":"gone"}`))
	assert.Equal(t, http.StatusBadRequest, send(http.MethodPost, "/products/", "admin", `{"name":"x","sku":"y","images":["not a url"]}`))

	mock.ExpectQuery(`FROM products WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(productRow(7, "Hammer", "HM-1"))
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/products/7", "user", ""))
	require.NoError(t, mock.ExpectationsWereMet())
}
