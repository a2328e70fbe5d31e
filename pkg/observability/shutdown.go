package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager runs cleanup steps when the process is asked to stop.
// Steps run one at a time, last registered first, so that a component is torn
// down before the components it was built on.
type ShutdownManager struct {
	logger  *logrus.Logger
	server  *http.Server
	funcs   []namedShutdownFunc
	timeout time.Duration
	reloads chan string
	mu      sync.Mutex
}

// NewShutdownManager creates a new shutdown manager.
// server may be nil; a zero timeout defaults to 30 seconds.
func NewShutdownManager(logger *logrus.Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
		reloads: make(chan string, 1),
	}
}

// Register adds a named shutdown step. Nil functions are ignored.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdownFunc{name: name, fn: fn})
}

// RequestReload asks WaitForSignal to call its reload function.
// It never blocks: requests arriving while one is pending are merged into it.
func (sm *ShutdownManager) RequestReload(reason string) {
	select {
	case sm.reloads <- reason:
	default:
		sm.logger.Debugf("Reload already pending, merging request: %s", reason)
	}
}

// ReloadSIGHUP is the reason passed to reload for SIGHUP
const ReloadSIGHUP = "SIGHUP"

// WaitForSignal blocks until SIGINT or SIGTERM is received or ctx is done.
// SIGHUP and RequestReload call reload, when set, on the waiting goroutine
// with the reason of the request.
func (sm *ShutdownManager) WaitForSignal(ctx context.Context, reload func(reason string)) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if reload != nil {
					sm.logger.Info("Received SIGHUP, reloading")
					reload(ReloadSIGHUP)
				}
				continue
			}
			sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)
			return
		case reason := <-sm.reloads:
			if reload != nil {
				sm.logger.Infof("Reloading: %s", reason)
				reload(reason)
			}
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, starting graceful shutdown")
			return
		}
	}
}

// Shutdown stops the HTTP server and runs every registered step.
// All steps run even when some fail; their errors are joined.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	var errs []error

	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("HTTP server shutdown failed: %w", err))
		}
	}

	sm.mu.Lock()
	funcs := append([]namedShutdownFunc(nil), sm.funcs...)
	sm.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		step := funcs[i]
		if err := ctx.Err(); err != nil {
			sm.logger.Warnf("Shutdown timeout reached, skipping %s", step.name)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		sm.logger.Debugf("Running shutdown step %s", step.name)
		if err := step.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown step %s failed", step.name)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
