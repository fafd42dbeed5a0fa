package auth

import (
	"errors"
	"time"
)

// Identity is the trusted result of credential verification.
// It is immutable for the lifetime of the request that produced it.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// User represents an account row in the users table
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	PrimaryRole string    `json:"primary_role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Credential verification errors. Handlers map all of these to a 401;
// the sub-reasons exist for logging and tests, not for the wire.
var (
	// ErrNoCredential means no bearer token was present on the request
	ErrNoCredential = errors.New("no credential provided")

	// ErrTokenMalformed means the token could not be parsed at all
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenExpired means the token was valid but past its expiry
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenSignature means the token signature did not verify
	ErrTokenSignature = errors.New("token signature invalid")
)
