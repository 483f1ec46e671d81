package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownIP is stored when the origin address of a request cannot be determined
const UnknownIP = "unknown"

// LogRecord represents one event captured on the request path.
// Records are created fully formed at the emission site and passed by value,
// so no component can mutate a record after it has been emitted.
type LogRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Data      string    `json:"data"`
}

// NewLogRecord creates a record with a fresh UUID and the current UTC time
func NewLogRecord(ip, data string) LogRecord {
	return LogRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		IP:        NormalizeIP(ip),
		Data:      data,
	}
}

// NewRequestLogRecord creates the record emitted for an incoming HTTP request
func NewRequestLogRecord(method, path, ip string) LogRecord {
	return NewLogRecord(ip, RequestData(method, path))
}

// RequestData formats the payload of a request log as "<method> <path>"
func RequestData(method, path string) string {
	return fmt.Sprintf("%s %s", method, path)
}

// NormalizeIP returns UnknownIP for empty or blank addresses
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return UnknownIP
	}
	return ip
}

// Validate checks that the record carries the fields storage requires
func (r LogRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("log record id cannot be empty")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("log record %s has no timestamp", r.ID)
	}
	return nil
}
