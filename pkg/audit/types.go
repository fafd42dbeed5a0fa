// Package audit records security-relevant events as structured entries
// separate from operational logging.
package audit

import "time"

// Event is a single audit record
type Event struct {
	Time    time.Time         `json:"time"`
	Type    string            `json:"type"`
	UserID  string            `json:"user_id,omitempty"`
	Email   string            `json:"email,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Event types emitted by the service
const (
	EventAccessDenied = "authz.access_denied"
	EventLogin        = "auth.login"
	EventLoginFailed  = "auth.login_failed"
	EventRegister     = "auth.register"
	EventDataWrite    = "data.write"
	EventDataDelete   = "data.delete"
)

// Logger records audit events. Implementations must be safe for
// concurrent use.
type Logger interface {
	Record(event Event)
}
