package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/lectio/canon/pkg/audit"
	"github.com/lectio/canon/pkg/httputil"
	"github.com/lectio/canon/pkg/storage"
)

// validUUID reports whether s is syntactically a UUID. Used to reject
// malformed IDs before any database round-trip.
func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

const testamentColumns = `id, title, content, members, created_by, created_at, updated_at`

func scanTestament(row interface {
	Scan(dest ...interface{}) error
}) (Testament, error) {
	var t Testament
	err := row.Scan(&t.ID, &t.Title, &t.Content, &t.Members, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func getTestamentByID(ctx context.Context, q storage.Querier, id string) (Testament, error) {
	return scanTestament(q.QueryRowContext(ctx,
		`SELECT `+testamentColumns+` FROM testaments WHERE id = $1`, id))
}

func (s *Server) handleListTestaments(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	rows, err := sess.Conn().QueryContext(r.Context(),
		`SELECT `+testamentColumns+` FROM testaments`)
	if err != nil {
		s.internalError(w, err, "failed to list testaments")
		return
	}
	defer rows.Close()

	testaments := []Testament{}
	for rows.Next() {
		t, err := scanTestament(rows)
		if err != nil {
			s.internalError(w, err, "failed to scan testament")
			return
		}
		testaments = append(testaments, t)
	}
	if err := rows.Err(); err != nil {
		s.internalError(w, err, "failed to iterate testaments")
		return
	}
	httputil.WriteSuccess(w, testaments)
}

func (s *Server) handleGetTestament(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	id := httputil.GetPathVars(r)["id"]
	if !validUUID(id) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}

	t, err := getTestamentByID(r.Context(), sess.Conn(), id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Testament not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to fetch testament")
		return
	}
	httputil.WriteSuccess(w, t)
}

func (s *Server) handleCreateTestament(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identity(w, r)
	if !ok {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req createTestamentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	// members are optional; they default to an empty object
	if req.Title == "" || len(req.Content) == 0 {
		httputil.WriteBadRequest(w, "Missing required fields")
		return
	}
	if len(req.Members) == 0 {
		req.Members = []byte(`{}`)
	}

	t, err := scanTestament(sess.Conn().QueryRowContext(r.Context(),
		`INSERT INTO testaments (title, content, members, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+testamentColumns,
		req.Title, []byte(req.Content), []byte(req.Members), identity.UserID))
	if err != nil {
		s.internalError(w, err, "failed to create testament")
		return
	}
	s.recordDataEvent(r, audit.EventDataWrite, "testaments", t.ID)
	httputil.WriteCreated(w, t)
}

func (s *Server) handleUpdateTestament(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	id := httputil.GetPathVars(r)["id"]
	if !validUUID(id) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}

	var req updateTestamentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Title == nil && req.Content == nil && req.Members == nil {
		httputil.WriteBadRequest(w, "At least one field must be provided for update")
		return
	}

	existing, err := getTestamentByID(r.Context(), sess.Conn(), id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Testament not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to fetch testament")
		return
	}

	// absent fields keep their current values
	title := existing.Title
	if req.Title != nil {
		title = *req.Title
	}
	content := []byte(existing.Content)
	if req.Content != nil {
		content = []byte(req.Content)
	}
	members := []byte(existing.Members)
	if req.Members != nil {
		members = []byte(req.Members)
	}

	updated, err := scanTestament(sess.Conn().QueryRowContext(r.Context(),
		`UPDATE testaments
		 SET title = $1, content = $2, members = $3, updated_at = now()
		 WHERE id = $4
		 RETURNING `+testamentColumns,
		title, content, members, id))
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Testament not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to update testament")
		return
	}
	s.recordDataEvent(r, audit.EventDataWrite, "testaments", updated.ID)
	httputil.WriteSuccess(w, updated)
}

func (s *Server) handleDeleteTestament(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	id := httputil.GetPathVars(r)["id"]
	if !validUUID(id) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}

	var deleted string
	err := sess.Conn().QueryRowContext(r.Context(),
		`DELETE FROM testaments WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Testament not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to delete testament")
		return
	}
	s.recordDataEvent(r, audit.EventDataDelete, "testaments", deleted)
	httputil.WriteSuccess(w, map[string]string{"message": "Testament deleted successfully"})
}
