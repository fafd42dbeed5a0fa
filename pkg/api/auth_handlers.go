package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/lib/pq"

	"github.com/lectio/canon/pkg/audit"
	"github.com/lectio/canon/pkg/auth"
	"github.com/lectio/canon/pkg/httputil"
)

const uniqueViolation = "23505"

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "All fields are required")
		return
	}

	hash, err := auth.HashPassword(req.Password, 0)
	if err != nil {
		s.internalError(w, err, "failed to hash password")
		return
	}

	var user auth.User
	err = s.db.QueryRowContext(r.Context(),
		`INSERT INTO users (email, username, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, email, username, primary_role, created_at, updated_at`,
		req.Email, req.Username, hash,
	).Scan(&user.ID, &user.Email, &user.Username, &user.PrimaryRole, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			httputil.WriteErrorMessage(w, http.StatusConflict, "User already exists")
			return
		}
		s.internalError(w, err, "failed to register user")
		return
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		s.internalError(w, err, "failed to issue token")
		return
	}

	s.audit.Record(audit.Event{Type: audit.EventRegister, UserID: user.ID, Email: user.Email})
	httputil.WriteCreated(w, map[string]interface{}{
		"message": "User registered successfully",
		"token":   token,
		"user":    user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Email and password are required")
		return
	}

	var (
		user auth.User
		hash string
	)
	err := s.db.QueryRowContext(r.Context(),
		`SELECT id, email, username, primary_role, password_hash, created_at, updated_at
		 FROM users WHERE email = $1`,
		req.Email,
	).Scan(&user.ID, &user.Email, &user.Username, &user.PrimaryRole, &hash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.audit.Record(audit.Event{Type: audit.EventLoginFailed, Email: req.Email, Reason: "unknown email"})
		httputil.WriteUnauthorized(w, "Invalid credentials")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to look up user")
		return
	}

	if !auth.ComparePassword(req.Password, hash) {
		s.audit.Record(audit.Event{Type: audit.EventLoginFailed, UserID: user.ID, Email: user.Email, Reason: "wrong password"})
		httputil.WriteUnauthorized(w, "Invalid credentials")
		return
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		s.internalError(w, err, "failed to issue token")
		return
	}

	s.audit.Record(audit.Event{Type: audit.EventLogin, UserID: user.ID, Email: user.Email})
	httputil.WriteSuccess(w, map[string]interface{}{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identity(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, identity)
}
