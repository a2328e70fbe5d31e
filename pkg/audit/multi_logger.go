package audit

import (
	"context"
	"errors"
)

// MultiLogger records every event in several journals
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a journal writing to every non-nil logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Len returns the number of journals written to
func (m *MultiLogger) Len() int {
	return len(m.loggers)
}

// Log writes the event to every journal, even when one of them fails.
// The errors are joined.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every journal
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
