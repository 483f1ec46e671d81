package goroutine

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

const (
	// StackTraceBufferSize is the buffer size for stack trace collection
	StackTraceBufferSize = 4096
)

// Recover recovers from panics in goroutines and logs them.
// Must be called directly via defer. If logger is nil, falls back to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		logPanic(name, logger, r)
	}
}

// RecoverWith behaves like Recover and additionally passes the panic value to onPanic.
// Used where a panic must be turned into a reported fault instead of only a log line.
func RecoverWith(name string, logger *zap.SugaredLogger, onPanic func(value interface{})) {
	if r := recover(); r != nil {
		logPanic(name, logger, r)
		if onPanic != nil {
			onPanic(r)
		}
	}
}

// Go runs fn in a new goroutine tracked by wg with panic recovery installed
func Go(wg *sync.WaitGroup, name string, logger *zap.SugaredLogger, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer Recover(name, logger)
		fn()
	}()
}

// PanicError converts a recovered panic value into an error
func PanicError(value interface{}) error {
	if err, ok := value.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", value)
}

func logPanic(name string, logger *zap.SugaredLogger, r interface{}) {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)

	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(buf[:n]))
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n",
		name, r, string(buf[:n]))
}
