package handlers

import (
	"context"

	"appendstream/internal/pipeline"
)

// Stream is the part of *pipeline.Pipeline the HTTP surface drives.
type Stream interface {
	Append(data []byte)
	State() pipeline.State
	Stats() pipeline.Stats
}

type Stopper interface {
	TriggerStop(ctx context.Context) (bool, error)
	Status() StopStatus
}

type StopStatus struct {
	Running   bool   `json:"running"`
	Finished  bool   `json:"finished"`
	LastError string `json:"lastError,omitempty"`
}

type Handler struct {
	stream        Stream
	stopper       Stopper
	maxFrameBytes int64
}

func New(stream Stream, stopper Stopper, maxFrameBytes int64) *Handler {
	return &Handler{
		stream:        stream,
		stopper:       stopper,
		maxFrameBytes: maxFrameBytes,
	}
}
