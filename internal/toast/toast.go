package toast

import (
	"sync"

	"frostflow/internal/util"

	"go.uber.org/zap"
)

// Severity classifies a user-facing message.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Toast is one queued user-facing message.
type Toast struct {
	ID       int      `json:"id"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Notifier accepts fire-and-forget user-facing messages. Callers never gate
// control flow on it.
type Notifier interface {
	Show(message string, severity Severity)
}

// Sink is a bounded in-memory toast queue. When full, the oldest message is
// dropped rather than blocking the caller.
type Sink struct {
	mu      sync.Mutex
	toasts  []Toast
	counter int
	limit   int
	logger  *zap.Logger
}

// NewSink creates a sink retaining at most limit messages.
func NewSink(limit int) *Sink {
	if limit <= 0 {
		limit = 50
	}
	return &Sink{limit: limit, logger: util.GetLogger()}
}

// Show enqueues a message.
func (s *Sink) Show(message string, severity Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.toasts = append(s.toasts, Toast{ID: s.counter, Message: message, Severity: severity})
	s.counter++
	if len(s.toasts) > s.limit {
		s.toasts = s.toasts[1:]
	}

	s.logger.Debug("Toast queued",
		zap.String("message", message),
		zap.String("severity", string(severity)))
}

// Drain returns and clears all queued messages.
func (s *Sink) Drain() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Toast, len(s.toasts))
	copy(out, s.toasts)
	s.toasts = s.toasts[:0]
	return out
}
