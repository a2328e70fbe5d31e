package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is a goroutine started by SafeGo
type Task struct {
	name string
	done chan struct{}
	err  error
}

// Name returns the task name given to SafeGo
func (t *Task) Name() string { return t.name }

// Done is closed when the task has returned
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the error of the task, including a recovered panic.
// It is only meaningful once Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task returns or ctx is done
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return fmt.Errorf("%s did not finish: %w", t.name, ctx.Err())
	}
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement (none when timeout is zero)
// - Error logging
//
// Use this instead of bare `go func()` for background tasks of the agent.
//
// Example:
//
//	task := SafeGo(ctx, log, 0, "config watcher", func(ctx context.Context) error {
//	    return config.Watch(ctx, path, time.Second, log, reload)
//	})
//	defer task.Wait(shutdownCtx)
func SafeGo(parentCtx context.Context, log logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) *Task {
	if log == nil {
		log = logrus.StandardLogger()
	}
	task := &Task{name: taskName, done: make(chan struct{})}

	go func() {
		ctx, cancel := parentCtx, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		}
		defer close(task.done)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				task.err = fmt.Errorf("panic in %s: %v", taskName, r)
				log.WithField("task", taskName).Errorf("PANIC recovered: %v\nStack trace:\n%s", r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			task.err = err
			// Caller decides whether this is critical
			log.WithField("task", taskName).WithError(err).Error("Background task failed")
		}
	}()

	return task
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
// Still provides panic recovery and context support.
func SafeGoNoError(parentCtx context.Context, log logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context)) *Task {
	return SafeGo(parentCtx, log, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
