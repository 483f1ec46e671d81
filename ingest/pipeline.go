package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cipherd/core"
	"cipherd/metrics"
	"cipherd/util/goroutine"

	"go.uber.org/zap"
)

const (
	// DefaultWriteTimeout bounds a single record insert
	DefaultWriteTimeout = 10 * time.Second
)

var (
	// ErrAlreadyStarted is returned when Start is called more than once
	ErrAlreadyStarted = errors.New("log pipeline already started")

	// ErrDroppedOnShutdown is reported for every record discarded because the worker never ran
	ErrDroppedOnShutdown = errors.New("log record dropped on shutdown")
)

// Writer is the storage side of the pipeline. A Writer is used by exactly one goroutine.
type Writer interface {
	// EnsureSchema creates the log table if it does not exist
	EnsureSchema(ctx context.Context) error
	// Insert stores rec. It returns false without error when a record with the same id already exists.
	Insert(ctx context.Context, rec core.LogRecord) (bool, error)
	// Close releases the underlying connection
	Close() error
}

// WriterOpener acquires the dedicated write connection
type WriterOpener func(ctx context.Context) (Writer, error)

// State is the persistence worker lifecycle state
type State int32

const (
	StateCreated State = iota
	StateProvisioning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateProvisioning:
		return "provisioning"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Options configures a Pipeline
type Options struct {
	// MaxQueueSize bounds the queue. 0 means unbounded.
	MaxQueueSize int
	// WriteTimeout bounds each insert. Defaults to DefaultWriteTimeout.
	WriteTimeout time.Duration
	// Reporter receives faults. Defaults to NewLoggingReporter.
	Reporter ErrorReporter
}

// Pipeline buffers log records and persists them with a single worker goroutine
type Pipeline struct {
	opener   WriterOpener
	queue    *recordQueue
	reporter ErrorReporter
	timeout  time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	done     chan struct{}
	doneOnce sync.Once
}

// NewPipeline creates a pipeline in the created state. Records emitted before
// Start are buffered and persisted once the worker runs.
func NewPipeline(opener WriterOpener, opts Options, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Reporter == nil {
		opts.Reporter = NewLoggingReporter(logger)
	}

	return &Pipeline{
		opener:   opener,
		queue:    newRecordQueue(opts.MaxQueueSize),
		reporter: opts.Reporter,
		timeout:  opts.WriteTimeout,
		logger:   logger,
		state:    StateCreated,
		done:     make(chan struct{}),
	}
}

// Start provisions the schema on the write connection and launches the worker.
// A provisioning failure is returned wrapped in core.ErrProvisioning, and the
// pipeline moves to stopped with every buffered record dropped.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateCreated:
		p.state = StateProvisioning
	case StateStopped:
		p.mu.Unlock()
		return ErrPipelineClosed
	default:
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.mu.Unlock()

	writer, err := p.provision(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrProvisioning, err)
		p.report(nil, err)
		p.queue.close()
		p.abandon()
		p.finish()
		return err
	}

	p.setState(StateDraining)
	p.logger.Infow("Log pipeline started", "pending", p.queue.len())

	go p.drain(writer)
	return nil
}

func (p *Pipeline) provision(ctx context.Context) (Writer, error) {
	if p.opener == nil {
		return nil, errors.New("no writer configured")
	}

	writer, err := p.opener(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	if err := writer.EnsureSchema(ctx); err != nil {
		if cerr := writer.Close(); cerr != nil {
			p.logger.Warnw("Failed to close write connection", "error", cerr)
		}
		return nil, fmt.Errorf("failed to create log table: %w", err)
	}
	return writer, nil
}

// Emit enqueues rec without blocking on storage. It never fails or panics into
// the caller: enqueue faults go to the error reporter.
func (p *Pipeline) Emit(rec core.LogRecord) {
	defer goroutine.RecoverWith("log-emit", p.logger, func(v interface{}) {
		p.report(&rec, fmt.Errorf("%w: %w", core.ErrEnqueue, goroutine.PanicError(v)))
	})

	if err := rec.Validate(); err != nil {
		p.report(&rec, fmt.Errorf("%w: %w", core.ErrEnqueue, err))
		return
	}
	if err := p.queue.push(rec); err != nil {
		p.report(&rec, fmt.Errorf("%w: %w", core.ErrEnqueue, err))
		return
	}

	metrics.LogRecordsEmitted.Inc()
	metrics.LogQueueDepth.Set(float64(p.queue.len()))
}

// EmitEvent builds a record for ip and data and emits it
func (p *Pipeline) EmitEvent(ip, data string) {
	p.Emit(core.NewLogRecord(ip, data))
}

// Shutdown stops accepting records and waits until every record enqueued
// before the call has been persisted. If ctx expires first an error carrying
// the pending count is returned and the worker keeps draining in the
// background. Calling Shutdown on a stopped pipeline returns nil.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	state := p.state
	if state == StateCreated {
		p.state = StateStopped
	}
	p.mu.Unlock()

	switch state {
	case StateStopped:
		return nil
	case StateCreated:
		p.queue.close()
		p.abandon()
		p.finish()
		p.logger.Infow("Log pipeline stopped before start")
		return nil
	}

	if p.queue.close() {
		p.logger.Infow("Log pipeline shutting down", "pending", p.queue.len())
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("log pipeline shutdown interrupted with %d records pending: %w", p.queue.len(), ctx.Err())
	}
}

// State returns the worker lifecycle state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending returns the number of records waiting to be persisted
func (p *Pipeline) Pending() int {
	return p.queue.len()
}

// Done is closed once the worker has stopped
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) drain(writer Writer) {
	defer p.finish()
	defer func() {
		if err := writer.Close(); err != nil {
			p.logger.Warnw("Failed to close log write connection", "error", err)
		}
	}()
	defer p.abandon()
	defer goroutine.Recover("log-pipeline-worker", p.logger)

	for {
		entry := p.queue.dequeue()
		metrics.LogQueueDepth.Set(float64(p.queue.len()))
		if entry.stop {
			p.logger.Infow("Log pipeline drained")
			return
		}
		p.persist(writer, entry.rec)
	}
}

// persist writes one record. Failures and panics are reported, never retried.
func (p *Pipeline) persist(writer Writer, rec core.LogRecord) {
	defer goroutine.RecoverWith("log-pipeline-write", p.logger, func(v interface{}) {
		p.report(&rec, fmt.Errorf("%w: %w", core.ErrWrite, goroutine.PanicError(v)))
	})

	// In-flight writes are detached from shutdown; only the write timeout applies.
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	inserted, err := writer.Insert(ctx, rec)
	metrics.LogWriteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.report(&rec, fmt.Errorf("%w: %w", core.ErrWrite, err))
		return
	}
	if !inserted {
		metrics.LogRecordsDeduplicated.Inc()
		p.logger.Debugw("Duplicate log record ignored", "log_id", rec.ID)
		return
	}
	metrics.LogRecordsPersisted.Inc()
}

// abandon reports every record still on the queue as dropped
func (p *Pipeline) abandon() {
	for _, rec := range p.queue.discard() {
		rec := rec
		p.report(&rec, ErrDroppedOnShutdown)
	}
	metrics.LogQueueDepth.Set(0)
}

func (p *Pipeline) finish() {
	p.setState(StateStopped)
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) report(rec *core.LogRecord, err error) {
	metrics.LogPipelineFaults.WithLabelValues(faultKind(err)).Inc()

	defer goroutine.Recover("log-error-reporter", p.logger)
	p.reporter.Report(rec, err)
}
