package httpapi

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"appendstream/internal/httpapi/handlers"
)

// StopTrigger runs a stop function at most once, in the background, so the
// HTTP request that asked for it does not wait on in-flight appends.
type StopTrigger struct {
	stop    func(context.Context) error
	timeout time.Duration
	logger  *log.Logger

	mu        sync.Mutex
	running   bool
	finished  bool
	lastError error
	done      chan struct{}
}

func NewStopTrigger(stop func(context.Context) error, timeout time.Duration, logger *log.Logger) *StopTrigger {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &StopTrigger{
		stop:    stop,
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// TriggerStop starts the stop in the background. It reports false if a stop
// has already been started.
func (st *StopTrigger) TriggerStop(_ context.Context) (bool, error) {
	st.mu.Lock()
	if st.running || st.finished {
		st.mu.Unlock()
		return false, nil
	}
	st.running = true
	st.mu.Unlock()

	go func() {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if st.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, st.timeout)
		}
		err := st.stop(ctx)
		cancel()

		st.mu.Lock()
		st.running = false
		st.finished = true
		st.lastError = err
		st.mu.Unlock()
		close(st.done)

		if err != nil {
			st.logger.Printf("stop failed: %v", err)
		} else {
			st.logger.Printf("stream stopped")
		}
	}()

	return true, nil
}

// Done is closed once a triggered stop has finished.
func (st *StopTrigger) Done() <-chan struct{} {
	return st.done
}

func (st *StopTrigger) Status() handlers.StopStatus {
	st.mu.Lock()
	defer st.mu.Unlock()

	errStr := ""
	if st.lastError != nil {
		errStr = st.lastError.Error()
	}
	return handlers.StopStatus{
		Running:   st.running,
		Finished:  st.finished,
		LastError: errStr,
	}
}
