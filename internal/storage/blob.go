package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidEndpoint is returned when an append target cannot be addressed.
var ErrInvalidEndpoint = errors.New("invalid blob endpoint")

// Appender is the interface for append-only blob backends.
// Azure append blobs, local files and S3 segment prefixes implement it.
type Appender interface {
	// Create prepares the remote blob. It is called once per pipeline
	// lifetime, before any Append. Creating a blob that already exists with
	// the right type is not an error.
	Create(ctx context.Context) error

	// Append writes chunk after everything previously appended.
	// Callers must not issue concurrent Appends against the same blob.
	Append(ctx context.Context, chunk []byte) error
}

// StatusError reports a non-2xx response from a blob endpoint.
type StatusError struct {
	Op         string
	StatusCode int
	Code       string // x-ms-error-code, when present
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status %d (%s)", e.Op, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}
