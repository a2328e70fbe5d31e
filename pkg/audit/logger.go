package audit

import (
	"context"
)

// Logger is the interface of the lifecycle journal
type Logger interface {
	// Log records an event
	Log(ctx context.Context, event *Event) error

	// Close closes the journal and flushes any buffered events
	Close() error
}

// NoOp returns a journal that discards every event
func NoOp() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(context.Context, *Event) error { return nil }
func (noOpLogger) Close() error                       { return nil }
