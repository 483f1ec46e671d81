package storage

import "errors"

// Storage error constants
var (
	// ErrInvalidPage is returned when size or offset are outside the accepted range
	ErrInvalidPage = errors.New("invalid page parameters")

	// ErrInvalidTableName is returned when the configured table name is not a plain SQL identifier
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrUnsupportedDriver is returned for a storage driver other than sqlite or postgres
	ErrUnsupportedDriver = errors.New("unsupported storage driver")

	// ErrDatabaseClosed is returned when attempting to use a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")
)
