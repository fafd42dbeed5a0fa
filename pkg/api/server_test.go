package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectio/canon/pkg/audit"
	"github.com/lectio/canon/pkg/auth"
	"github.com/lectio/canon/pkg/observability"
	"github.com/lectio/canon/pkg/rbac"
	"github.com/lectio/canon/pkg/storage"
)

const (
	testUserID      = "3b241101-e2bb-4255-8caf-4136c566a962"
	testTestamentID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	testVerseID     = "9f86d081-884c-4d63-a6c1-d6f1a1cfcd6e"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := rbac.NewStore()
	gate := rbac.NewGate(rbac.NewAuthorizer(store, logger), metrics, audit.NewNopLogger(), logger)

	srv := NewServer(Options{
		DB:      db,
		Tokens:  auth.NewTokenManager([]byte("test-signing-key"), "canon-test"),
		Binder:  storage.NewBinder(db, time.Second),
		Gate:    gate,
		Logger:  logger,
		Audit:   audit.NewNopLogger(),
		Metrics: metrics,
	})
	return srv, mock
}

// expectBoundSession queues the two set_config calls the session binder runs
func expectBoundSession(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`set_config\('canon\.user_id'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`set_config\('canon\.user_email'`).WillReturnResult(sqlmock.NewResult(0, 1))
}

// expectAllowedPipeline queues the authorization pipeline with a grant
func expectAllowedPipeline(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT primary_role, context_roles FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"primary_role", "context_roles"}).
			AddRow("admin", []byte(`{}`)))
	mock.ExpectQuery(`SELECT id FROM roles`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("admin-id"))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
}

func authedRequest(t *testing.T, srv *Server, method, path, body string) *http.Request {
	t.Helper()
	token, err := srv.tokens.Generate(testUserID, "u@example.com")
	require.NoError(t, err)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestServer_NoToken_401WithoutAnyQuery(t *testing.T) {
	srv, mock := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/testaments/all", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthenticated")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_ListTestaments(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	mock.ExpectQuery(`SELECT id, title, content, members, created_by, created_at, updated_at FROM testaments`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "content", "members", "created_by", "created_at", "updated_at",
		}).AddRow(testTestamentID, "Genesis", []byte(`{}`), []byte(`{}`), testUserID, time.Now(), time.Now()))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodGet, "/testaments/all", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Genesis")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_GetTestament_InvalidID(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	// no resource query queued: validation must reject before storage

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodGet, "/testaments/single/not-a-uuid", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid testament ID")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_GetTestament_NotFound(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	mock.ExpectQuery(`SELECT id, title, content, members, created_by, created_at, updated_at FROM testaments WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "content", "members", "created_by", "created_at", "updated_at",
		}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodGet, "/testaments/single/"+testTestamentID, ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Testament not found")
}

func TestServer_CreateTestament(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	mock.ExpectQuery(`INSERT INTO testaments`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "content", "members", "created_by", "created_at", "updated_at",
		}).AddRow(testTestamentID, "Exodus", []byte(`{"v":{"N":"1"}}`), []byte(`{}`), testUserID, time.Now(), time.Now()))

	body := `{"title":"Exodus","content":{"v":{"N":"1"}}}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodPost, "/testaments/new", body))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Exodus")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_CreateTestament_MissingFields(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodPost, "/testaments/new", `{"title":"only"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing required fields")
}

func TestServer_UpdateTestament_RequiresAField(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodPut, "/testaments/modified/"+testTestamentID, `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "At least one field must be provided for update")
}

func TestServer_UpdateTestament_MergesWithExisting(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	columns := []string{"id", "title", "content", "members", "created_by", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT id, title, content, members, created_by, created_at, updated_at FROM testaments WHERE id`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(testTestamentID, "Old Title", []byte(`{"keep":"me"}`), []byte(`{}`), testUserID, time.Now(), time.Now()))
	// only the title changes; content carries the existing value
	mock.ExpectQuery(`UPDATE testaments`).
		WithArgs("New Title", []byte(`{"keep":"me"}`), []byte(`{}`), testTestamentID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(testTestamentID, "New Title", []byte(`{"keep":"me"}`), []byte(`{}`), testUserID, time.Now(), time.Now()))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodPut, "/testaments/modified/"+testTestamentID, `{"title":"New Title"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "New Title")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_DeleteTestament(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	mock.ExpectQuery(`DELETE FROM testaments WHERE id = \$1 RETURNING id`).
		WithArgs(testTestamentID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testTestamentID))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodDelete, "/testaments/expired/"+testTestamentID, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Testament deleted successfully")
}

func TestServer_InsufficientPermissions_403(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	mock.ExpectQuery(`SELECT primary_role, context_roles FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"primary_role", "context_roles"}).
			AddRow("user", []byte(`{}`)))
	mock.ExpectQuery(`SELECT id FROM roles`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-id"))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodPost, "/testaments/new", `{"title":"x","content":{}}`))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Forbidden: Insufficient permissions")
}

func TestServer_ListVerses_ParentMissing(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM testaments WHERE id = \$1\)`).
		WithArgs(testTestamentID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodGet, "/verses/"+testTestamentID, ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Testament not found")
}

func TestServer_CreateVerse(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)
	mock.ExpectQuery(`INSERT INTO verses`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "testament_id", "subtitle", "content", "subscribers", "created_by", "created_at", "updated_at",
		}).AddRow(testVerseID, testTestamentID, "In the beginning", []byte(`{"text":"..."}`), []byte(`{}`), testUserID, time.Now(), time.Now()))

	body := `{"testament_id":"` + testTestamentID + `","subtitle":"In the beginning","content":{"text":"..."}}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodPost, "/verses/new", body))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "In the beginning")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_DeleteVerse_InvalidVerseID(t *testing.T) {
	srv, mock := newTestServer(t)

	expectBoundSession(mock)
	expectAllowedPipeline(mock)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, authedRequest(t, srv, http.MethodDelete, "/verses/deleted/"+testTestamentID+"/nope", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid verse ID")
	assert.NoError(t, mock.ExpectationsWereMet())
}
