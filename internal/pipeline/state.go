package pipeline

import "errors"

type State int32

const (
	StateUninitialized State = iota
	StateCreating
	StateReady
	StateUploading
	StateCreationFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	case StateUploading:
		return "uploading"
	case StateCreationFailed:
		return "creation_failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// accepting reports whether drained chunks may be dispatched in this state.
func (s State) accepting() bool {
	return s == StateReady || s == StateUploading
}

// terminal reports whether the pipeline can never upload again.
func (s State) terminal() bool {
	return s == StateCreationFailed || s == StateStopped
}

var (
	// ErrCreationFailed is fatal: the pipeline must be rebuilt to retry.
	ErrCreationFailed = errors.New("append blob creation failed")
	// ErrAppendFailed marks a dropped chunk. Later chunks are unaffected.
	ErrAppendFailed   = errors.New("append failed")
	ErrQueueFull      = errors.New("upload queue full")
	ErrAlreadyStarted = errors.New("pipeline already started")
	ErrStopped        = errors.New("pipeline stopped")
)
