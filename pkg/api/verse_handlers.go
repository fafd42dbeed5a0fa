package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/lectio/canon/pkg/audit"
	"github.com/lectio/canon/pkg/httputil"
	"github.com/lectio/canon/pkg/storage"
)

const verseColumns = `id, testament_id, subtitle, content, subscribers, created_by, created_at, updated_at`

func scanVerse(row interface {
	Scan(dest ...interface{}) error
}) (Verse, error) {
	var v Verse
	err := row.Scan(&v.ID, &v.TestamentID, &v.Subtitle, &v.Content, &v.Subscribers, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func getVerseByID(ctx context.Context, q storage.Querier, id string) (Verse, error) {
	return scanVerse(q.QueryRowContext(ctx,
		`SELECT `+verseColumns+` FROM verses WHERE id = $1`, id))
}

func (s *Server) handleListVerses(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	testamentID := httputil.GetPathVars(r)["testament_id"]
	if !validUUID(testamentID) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}

	// the parent must exist before listing its verses
	var exists bool
	err := sess.Conn().QueryRowContext(r.Context(),
		`SELECT EXISTS (SELECT 1 FROM testaments WHERE id = $1)`, testamentID).Scan(&exists)
	if err != nil {
		s.internalError(w, err, "failed to check testament")
		return
	}
	if !exists {
		httputil.WriteNotFoundError(w, "Testament not found")
		return
	}

	rows, err := sess.Conn().QueryContext(r.Context(),
		`SELECT `+verseColumns+` FROM verses WHERE testament_id = $1`, testamentID)
	if err != nil {
		s.internalError(w, err, "failed to list verses")
		return
	}
	defer rows.Close()

	verses := []Verse{}
	for rows.Next() {
		v, err := scanVerse(rows)
		if err != nil {
			s.internalError(w, err, "failed to scan verse")
			return
		}
		verses = append(verses, v)
	}
	if err := rows.Err(); err != nil {
		s.internalError(w, err, "failed to iterate verses")
		return
	}
	httputil.WriteSuccess(w, verses)
}

func (s *Server) handleGetVerse(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	vars := httputil.GetPathVars(r)
	if !validUUID(vars["testament_id"]) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}
	if !validUUID(vars["verse_id"]) {
		httputil.WriteBadRequest(w, "Invalid verse ID")
		return
	}

	v, err := getVerseByID(r.Context(), sess.Conn(), vars["verse_id"])
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Verse not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to fetch verse")
		return
	}
	httputil.WriteSuccess(w, v)
}

func (s *Server) handleCreateVerse(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identity(w, r)
	if !ok {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req createVerseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !validUUID(req.TestamentID) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}
	// subscribers are optional; they default to an empty object
	if req.Subtitle == "" || len(req.Content) == 0 {
		httputil.WriteBadRequest(w, "Missing required fields")
		return
	}
	if len(req.Subscribers) == 0 {
		req.Subscribers = []byte(`{}`)
	}

	v, err := scanVerse(sess.Conn().QueryRowContext(r.Context(),
		`INSERT INTO verses (testament_id, subtitle, content, subscribers, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+verseColumns,
		req.TestamentID, req.Subtitle, []byte(req.Content), []byte(req.Subscribers), identity.UserID))
	if err != nil {
		s.internalError(w, err, "failed to create verse")
		return
	}
	s.recordDataEvent(r, audit.EventDataWrite, "verses", v.ID)
	httputil.WriteCreated(w, v)
}

func (s *Server) handleUpdateVerse(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	vars := httputil.GetPathVars(r)
	if !validUUID(vars["testament_id"]) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}
	verseID := vars["verse_id"]
	if !validUUID(verseID) {
		httputil.WriteBadRequest(w, "Invalid verse ID")
		return
	}

	existing, err := getVerseByID(r.Context(), sess.Conn(), verseID)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Verse not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to fetch verse")
		return
	}

	var req updateVerseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Subtitle == nil && req.Content == nil && req.Subscribers == nil {
		httputil.WriteBadRequest(w, "At least one field must be provided for update")
		return
	}

	subtitle := existing.Subtitle
	if req.Subtitle != nil {
		subtitle = *req.Subtitle
	}
	content := []byte(existing.Content)
	if req.Content != nil {
		content = []byte(req.Content)
	}
	subscribers := []byte(existing.Subscribers)
	if req.Subscribers != nil {
		subscribers = []byte(req.Subscribers)
	}

	updated, err := scanVerse(sess.Conn().QueryRowContext(r.Context(),
		`UPDATE verses
		 SET subtitle = $1, content = $2, subscribers = $3, updated_at = now()
		 WHERE id = $4
		 RETURNING `+verseColumns,
		subtitle, content, subscribers, verseID))
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Verse not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to update verse")
		return
	}
	s.recordDataEvent(r, audit.EventDataWrite, "verses", updated.ID)
	httputil.WriteSuccess(w, updated)
}

func (s *Server) handleDeleteVerse(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	vars := httputil.GetPathVars(r)
	if !validUUID(vars["testament_id"]) {
		httputil.WriteBadRequest(w, "Invalid testament ID")
		return
	}
	verseID := vars["verse_id"]
	if !validUUID(verseID) {
		httputil.WriteBadRequest(w, "Invalid verse ID")
		return
	}

	var deleted string
	err := sess.Conn().QueryRowContext(r.Context(),
		`DELETE FROM verses WHERE id = $1 RETURNING id`, verseID).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "Verse not found")
		return
	}
	if err != nil {
		s.internalError(w, err, "failed to delete verse")
		return
	}
	s.recordDataEvent(r, audit.EventDataDelete, "verses", deleted)
	httputil.WriteSuccess(w, map[string]string{"message": "Verse deleted successfully"})
}
