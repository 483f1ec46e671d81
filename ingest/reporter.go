package ingest

import (
	"errors"

	"cipherd/core"

	"go.uber.org/zap"
)

// ErrorReporter receives faults from the log pipeline.
// rec is nil when the fault is not bound to a single record (provisioning).
// Implementations must be safe for concurrent use: enqueue faults are reported
// from request goroutines, write faults from the worker.
type ErrorReporter interface {
	Report(rec *core.LogRecord, err error)
}

// ReporterFunc adapts a function to ErrorReporter
type ReporterFunc func(rec *core.LogRecord, err error)

// Report calls f(rec, err)
func (f ReporterFunc) Report(rec *core.LogRecord, err error) {
	f(rec, err)
}

type loggingReporter struct {
	logger *zap.SugaredLogger
}

// NewLoggingReporter returns the default reporter, which logs every fault.
// Enqueue faults and shutdown drops are logged at warn level, everything else at error.
func NewLoggingReporter(logger *zap.SugaredLogger) ErrorReporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &loggingReporter{logger: logger}
}

func (r *loggingReporter) Report(rec *core.LogRecord, err error) {
	log := r.logger.Errorw
	if errors.Is(err, core.ErrEnqueue) || errors.Is(err, ErrDroppedOnShutdown) {
		log = r.logger.Warnw
	}

	if rec == nil {
		log("Log pipeline fault", "kind", faultKind(err), "error", err)
		return
	}
	log("Log pipeline fault",
		"kind", faultKind(err),
		"log_id", rec.ID,
		"ip", rec.IP,
		"data", rec.Data,
		"error", err)
}

// faultKind extends core.FaultKind with the pipeline's shutdown drops
func faultKind(err error) string {
	if errors.Is(err, ErrDroppedOnShutdown) {
		return "dropped"
	}
	return core.FaultKind(err)
}
