package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps events in memory. Intended for tests and short-lived
// tooling.
type MemoryLogger struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryLogger creates an in-memory event logger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(ctx context.Context, event *Event) error {
	if actor := ActorFromContext(ctx); actor != "" && event.Actor == "" {
		event.Actor = actor
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *MemoryLogger) Close() error { return nil }

// Events returns a snapshot of the recorded events.
func (l *MemoryLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Event{}, l.events...)
}

// Reset discards all recorded events.
func (l *MemoryLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
