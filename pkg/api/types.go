package api

import (
	"encoding/json"
	"time"
)

// Testament is a top-level guarded resource
type Testament struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	Members   json.RawMessage `json:"members"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Verse is a child resource of a testament
type Verse struct {
	ID          string          `json:"id"`
	TestamentID string          `json:"testament_id"`
	Subtitle    string          `json:"subtitle"`
	Content     json.RawMessage `json:"content"`
	Subscribers json.RawMessage `json:"subscribers"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createTestamentRequest struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
	Members json.RawMessage `json:"members"`
}

// updateTestamentRequest uses pointers and raw JSON so absent fields can
// be told apart from explicit empty values during the partial-update merge
type updateTestamentRequest struct {
	Title   *string         `json:"title"`
	Content json.RawMessage `json:"content"`
	Members json.RawMessage `json:"members"`
}

type createVerseRequest struct {
	TestamentID string          `json:"testament_id"`
	Subtitle    string          `json:"subtitle"`
	Content     json.RawMessage `json:"content"`
	Subscribers json.RawMessage `json:"subscribers"`
}

type updateVerseRequest struct {
	Subtitle    *string         `json:"subtitle"`
	Content     json.RawMessage `json:"content"`
	Subscribers json.RawMessage `json:"subscribers"`
}
