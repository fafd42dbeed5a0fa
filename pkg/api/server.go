// Package api exposes the HTTP surface: authentication endpoints and
// gate-protected CRUD on testaments and verses.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lectio/canon/pkg/audit"
	"github.com/lectio/canon/pkg/auth"
	"github.com/lectio/canon/pkg/httputil"
	"github.com/lectio/canon/pkg/middleware"
	"github.com/lectio/canon/pkg/observability"
	"github.com/lectio/canon/pkg/rbac"
	"github.com/lectio/canon/pkg/storage"
)

// Server wires the middleware pipeline and resource handlers
type Server struct {
	db      *sql.DB
	tokens  *auth.TokenManager
	binder  *storage.Binder
	gate    *rbac.Gate
	limiter *middleware.LoginRateLimiter
	logger  *observability.Logger
	audit   audit.Logger
	metrics *observability.Metrics
	router  *mux.Router
}

// Options carries the server's dependencies
type Options struct {
	DB      *sql.DB
	Tokens  *auth.TokenManager
	Binder  *storage.Binder
	Gate    *rbac.Gate
	Limiter *middleware.LoginRateLimiter // nil disables login rate limiting
	Logger  *observability.Logger
	Audit   audit.Logger
	Metrics *observability.Metrics
}

// NewServer creates the API server and registers all routes
func NewServer(opts Options) *Server {
	s := &Server{
		db:      opts.DB,
		tokens:  opts.Tokens,
		binder:  opts.Binder,
		gate:    opts.Gate,
		limiter: opts.Limiter,
		logger:  opts.Logger,
		audit:   opts.Audit,
		metrics: opts.Metrics,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(
		httputil.RequestIDMiddleware,
		s.metrics.HTTPMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	)

	// public credential endpoints run on the shared pool, not a bound session
	authRouter := r.PathPrefix("/auth").Subrouter()
	login := http.Handler(http.HandlerFunc(s.handleLogin))
	if s.limiter != nil {
		login = s.limiter.Handler(login)
	}
	authRouter.Handle("/register", http.HandlerFunc(s.handleRegister)).Methods(http.MethodPost)
	authRouter.Handle("/login", login).Methods(http.MethodPost)
	authRouter.Handle("/me",
		middleware.Auth(s.tokens, s.logger)(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	// everything below requires a verified identity and a bound session
	protect := httputil.Chain(
		middleware.Auth(s.tokens, s.logger),
		middleware.Session(s.binder, s.metrics, s.logger),
	)
	guard := func(action rbac.Action, table rbac.Table, h http.HandlerFunc) http.Handler {
		return protect(s.gate.Require(action, table)(h))
	}

	t := r.PathPrefix("/testaments").Subrouter()
	t.Handle("/all", guard(rbac.ActionSelect, rbac.TableTestaments, s.handleListTestaments)).Methods(http.MethodGet)
	t.Handle("/single/{id}", guard(rbac.ActionSelect, rbac.TableTestaments, s.handleGetTestament)).Methods(http.MethodGet)
	t.Handle("/new", guard(rbac.ActionInsert, rbac.TableTestaments, s.handleCreateTestament)).Methods(http.MethodPost)
	t.Handle("/modified/{id}", guard(rbac.ActionUpdate, rbac.TableTestaments, s.handleUpdateTestament)).Methods(http.MethodPut)
	t.Handle("/expired/{id}", guard(rbac.ActionDelete, rbac.TableTestaments, s.handleDeleteTestament)).Methods(http.MethodDelete)

	v := r.PathPrefix("/verses").Subrouter()
	v.Handle("/new", guard(rbac.ActionInsert, rbac.TableVerses, s.handleCreateVerse)).Methods(http.MethodPost)
	v.Handle("/updated/{testament_id}/{verse_id}", guard(rbac.ActionUpdate, rbac.TableVerses, s.handleUpdateVerse)).Methods(http.MethodPut)
	v.Handle("/deleted/{testament_id}/{verse_id}", guard(rbac.ActionDelete, rbac.TableVerses, s.handleDeleteVerse)).Methods(http.MethodDelete)
	v.Handle("/{testament_id}", guard(rbac.ActionSelect, rbac.TableVerses, s.handleListVerses)).Methods(http.MethodGet)
	v.Handle("/{testament_id}/{verse_id}", guard(rbac.ActionSelect, rbac.TableVerses, s.handleGetVerse)).Methods(http.MethodGet)

	return r
}

// session returns the bound connection for the request, or fails with
// 400 when the binder never ran.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*storage.Session, bool) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		httputil.WriteBadRequest(w, "Invalid session")
		return nil, false
	}
	return sess, true
}

// identity returns the verified identity, or fails with 401
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Unauthenticated")
		return nil, false
	}
	return identity, true
}

// recordDataEvent writes an audit entry for a successful mutation
func (s *Server) recordDataEvent(r *http.Request, eventType, table, id string) {
	userID := ""
	if identity, ok := middleware.GetIdentity(r.Context()); ok {
		userID = identity.UserID
	}
	s.audit.Record(audit.Event{
		Type:   eventType,
		UserID: userID,
		Details: map[string]string{
			"table": table,
			"id":    id,
		},
	})
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.WithError(err).Error(msg)
	httputil.WriteInternalError(w)
}
