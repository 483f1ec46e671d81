package core

import "errors"

// Fault kinds. Concrete causes are wrapped with fmt.Errorf("%w: %w", kind, cause)
// so callers can match both the kind and the cause with errors.Is.
var (
	// ErrEnqueue is reported when a record cannot be placed on the ingestion queue
	ErrEnqueue = errors.New("log enqueue failed")

	// ErrProvisioning is returned when the log table cannot be created.
	// It is fatal to the persistence worker.
	ErrProvisioning = errors.New("log storage provisioning failed")

	// ErrWrite is reported when a single record insert fails
	ErrWrite = errors.New("log write failed")

	// ErrQuery is returned when reading persisted logs fails
	ErrQuery = errors.New("log query failed")
)

// FaultKind returns a short label for the fault kind wrapped in err, used as a metrics label
func FaultKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrEnqueue):
		return "enqueue"
	case errors.Is(err, ErrProvisioning):
		return "provisioning"
	case errors.Is(err, ErrWrite):
		return "write"
	case errors.Is(err, ErrQuery):
		return "query"
	default:
		return "other"
	}
}
