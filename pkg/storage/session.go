package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrConnectionTimeout indicates the pool could not supply a connection
// within the configured acquire window.
var ErrConnectionTimeout = errors.New("timed out acquiring database connection")

// DefaultAcquireTimeout bounds connection acquisition when the config
// does not set one.
const DefaultAcquireTimeout = 5 * time.Second

// Querier is the subset of database operations handlers need. Both
// *sql.DB and *sql.Conn satisfy it; a bound Session exposes its
// dedicated connection through this interface.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Session is an exclusive database connection with the caller's identity
// bound as Postgres session variables, so row-level security policies can
// read it via current_setting. Release must be called when the request
// finishes; it is safe to call more than once.
type Session struct {
	conn    *sql.Conn
	userID  string
	email   string
	release sync.Once
}

// Binder acquires scoped sessions from a shared pool
type Binder struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

// NewBinder creates a Binder over the given pool. A non-positive timeout
// falls back to DefaultAcquireTimeout.
func NewBinder(db *sql.DB, acquireTimeout time.Duration) *Binder {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Binder{db: db, acquireTimeout: acquireTimeout}
}

// Bind checks out a dedicated connection and sets the identity session
// variables on it. On any failure after checkout the connection is
// returned to the pool before the error propagates.
func (b *Binder) Bind(ctx context.Context, userID, email string) (*Session, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, b.acquireTimeout)
	defer cancel()

	conn, err := b.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrConnectionTimeout
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	// set_config with is_local=false keeps the value for the lifetime of
	// the session, not just the current transaction.
	if _, err := conn.ExecContext(ctx, `SELECT set_config('canon.user_id', $1, false)`, userID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind user id: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT set_config('canon.user_email', $1, false)`, email); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind user email: %w", err)
	}

	return &Session{conn: conn, userID: userID, email: email}, nil
}

// Conn exposes the bound connection for queries
func (s *Session) Conn() Querier {
	return s.conn
}

// UserID returns the identity bound to this session
func (s *Session) UserID() string {
	return s.userID
}

// Email returns the email bound to this session
func (s *Session) Email() string {
	return s.email
}

// Release returns the connection to the pool. Subsequent calls are no-ops.
func (s *Session) Release() {
	s.release.Do(func() {
		s.conn.Close()
	})
}
