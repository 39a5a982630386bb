package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Notification is one message shown to the user.
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Sink accepts notifications. It is fire-and-forget: callers never see a
// result, so implementations swallow their own failures.
type Sink interface {
	Notify(message string, severity Severity)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(message string, severity Severity)

func (f SinkFunc) Notify(message string, severity Severity) { f(message, severity) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(string, Severity) {})

// Multi delivers to every sink in order.
type Multi []Sink

func (m Multi) Notify(message string, severity Severity) {
	for _, s := range m {
		if s != nil {
			s.Notify(message, severity)
		}
	}
}

// Log writes notifications to a zerolog logger.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Notify(message string, severity Severity) {
	ev := l.Logger.Info()
	if severity == SeverityError {
		ev = l.Logger.Warn()
	}
	ev.Str("severity", string(severity)).Msg(message)
}

// Writer prints notifications for a terminal user.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Notify(message string, severity Severity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := "ok"
	if severity == SeverityError {
		prefix = "error"
	}
	_, _ = fmt.Fprintf(w.w, "[%s] %s\n", prefix, message)
}

// Recorder keeps every notification for later inspection.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(message string, severity Severity) {
	r.mu.Lock()
	r.items = append(r.items, Notification{Message: message, Severity: severity})
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Count returns the number of notifications with the given severity.
func (r *Recorder) Count(severity Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Severity == severity {
			n++
		}
	}
	return n
}
