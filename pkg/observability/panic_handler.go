package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverToError converts a panic into an error stored in *errp.
//
// Usage in defer statements:
//
//	func (e *Entry) Start(...) (err error) {
//	    defer observability.RecoverToError(&err, log, "start demo")
//	    ...
//	}
//
// The panic value and the stack trace are logged at Error level. Panics raised
// by foreign code cannot be recovered: a crash inside a shared library takes
// the process down.
func RecoverToError(errp *error, logger logrus.FieldLogger, context string) {
	r := recover()
	if r == nil {
		return
	}
	if logger != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
	if errp != nil {
		*errp = fmt.Errorf("panic during %s: %v", context, r)
	}
}
