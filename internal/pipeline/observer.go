package pipeline

import "time"

// Observer receives pipeline events. Implementations must be safe for
// concurrent use and must not block. Most callbacks run with the pipeline
// lock held, so they must not call back into the Pipeline.
type Observer interface {
	OnStateChange(from, to State)
	OnChunkDrained(size int)
	OnAppend(size int, elapsed time.Duration, err error)
	OnDrop(size int, err error)
	OnQueueDepth(depth int)
}

type noopObserver struct{}

func (noopObserver) OnStateChange(State, State)         {}
func (noopObserver) OnChunkDrained(int)                 {}
func (noopObserver) OnAppend(int, time.Duration, error) {}
func (noopObserver) OnDrop(int, error)                  {}
func (noopObserver) OnQueueDepth(int)                   {}
