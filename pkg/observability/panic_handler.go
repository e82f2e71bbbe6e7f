package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the stack trace. It must
// be called directly in a defer statement:
//
//	defer observability.RecoverPanic(logger, "invitation sweep")
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// SafeJob wraps a background job so a panic in one run does not kill the
// scheduler goroutine
func SafeJob(logger *Logger, name string, job func()) func() {
	return func() {
		defer RecoverPanic(logger, name)
		job()
	}
}
