package audit

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// logrusLogger writes audit events as JSON lines through logrus
type logrusLogger struct {
	log *logrus.Logger
}

// NewLogger creates an audit logger writing JSON entries to w
func NewLogger(w io.Writer) Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetLevel(logrus.InfoLevel)
	return &logrusLogger{log: log}
}

func (l *logrusLogger) Record(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	fields := logrus.Fields{
		"audit":      true,
		"event_type": event.Type,
		"event_time": event.Time.Format(time.RFC3339Nano),
	}
	if event.UserID != "" {
		fields["user_id"] = event.UserID
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	for k, v := range event.Details {
		fields["detail_"+k] = v
	}
	l.log.WithFields(fields).Info(event.Type)
}

// nopLogger discards all events
type nopLogger struct{}

// NewNopLogger returns a logger that drops every event. Useful in tests.
func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) Record(Event) {}
