package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"appendstream/internal/ingest"
	"appendstream/internal/storage"
)

const (
	DefaultThresholdBytes = 256 * 1024
	DefaultQueueSize      = 16
	DefaultRequestTimeout = 30 * time.Second
)

type Options struct {
	// ThresholdBytes is the buffered size that triggers a flush.
	ThresholdBytes int
	// QueueSize bounds how many drained chunks may wait for the worker.
	QueueSize int
	// RequestTimeout bounds each create/append call. Zero selects
	// DefaultRequestTimeout; a negative value disables the bound.
	RequestTimeout time.Duration
	// FlushOnStop uploads the sub-threshold remainder on Stop instead of
	// discarding it.
	FlushOnStop bool
	Logger      *log.Logger
	Observer    Observer
}

// Chunk is one flush unit. Data must not be modified after drain.
type Chunk struct {
	Seq    uint64
	Offset uint64
	Data   []byte
}

type Stats struct {
	State          string `json:"state"`
	Buffered       int    `json:"bufferedBytes"`
	TotalBytes     uint64 `json:"totalBytes"`
	QueueDepth     int    `json:"queueDepth"`
	ChunksDrained  uint64 `json:"chunksDrained"`
	ChunksUploaded uint64 `json:"chunksUploaded"`
	ChunksFailed   uint64 `json:"chunksFailed"`
	ChunksDropped  uint64 `json:"chunksDropped"`
	BytesUploaded  uint64 `json:"bytesUploaded"`
	LastError      string `json:"lastError,omitempty"`
}

// Pipeline drains an ingest buffer into an append-only blob. A single worker
// goroutine consumes a FIFO queue, so at most one append is in flight and the
// server sees chunks in drain order. Failed appends are logged and dropped;
// they are never retried.
type Pipeline struct {
	appender storage.Appender
	buffer   *ingest.Buffer
	opts     Options
	logger   *log.Logger
	observer Observer

	mu           sync.Mutex
	state        State
	queue        chan Chunk
	done         chan struct{}
	cancel       context.CancelFunc
	nextSeq      uint64
	drainedBytes uint64
	lastErr      error

	drained  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
	upBytes  atomic.Uint64
}

func New(appender storage.Appender, buffer *ingest.Buffer, opts Options) (*Pipeline, error) {
	if appender == nil {
		return nil, fmt.Errorf("appender is nil")
	}
	if buffer == nil {
		buffer = ingest.NewBuffer()
	}
	if opts.ThresholdBytes <= 0 {
		opts.ThresholdBytes = DefaultThresholdBytes
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &Pipeline{
		appender: appender,
		buffer:   buffer,
		opts:     opts,
		logger:   logger,
		observer: observer,
		state:    StateUninitialized,
	}, nil
}

// Start creates the remote blob and launches the upload worker. It blocks for
// the duration of the create request and must not be called from the
// producer's goroutine. Data appended before Start is drained once Ready.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case StateUninitialized:
	case StateStopped:
		p.mu.Unlock()
		return ErrStopped
	default:
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.setStateLocked(StateCreating)
	p.mu.Unlock()

	p.logger.Printf("[pipeline] creating append blob")
	reqCtx, cancel := p.requestContext(ctx)
	err := p.appender.Create(reqCtx)
	cancel()

	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCreationFailed, err)
		p.lastErr = err
		p.setStateLocked(StateCreationFailed)
		p.mu.Unlock()
		p.logger.Printf("[pipeline] %v", err)
		return err
	}

	workerCtx, workerCancel := context.WithCancel(context.WithoutCancel(ctx))
	p.queue = make(chan Chunk, p.opts.QueueSize)
	p.done = make(chan struct{})
	p.cancel = workerCancel
	p.setStateLocked(StateReady)
	go p.run(workerCtx, p.queue, p.done)
	p.mu.Unlock()

	p.logger.Printf("[pipeline] append blob ready (threshold=%d bytes)", p.opts.ThresholdBytes)
	p.OnDataAvailable()
	return nil
}

// Append is the producer entry point. It never blocks on network I/O and
// never fails. Input arriving after a terminal state is discarded.
func (p *Pipeline) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	if p.State().terminal() {
		return
	}
	p.buffer.Append(data)
	p.OnDataAvailable()
}

// OnDataAvailable drains the buffer if it crossed the threshold and queues
// the chunk for upload. Outside Ready/Uploading it does nothing, leaving the
// bytes buffered.
func (p *Pipeline) OnDataAvailable() {
	p.mu.Lock()
	if !p.state.accepting() {
		p.mu.Unlock()
		return
	}
	data, ok := p.buffer.DrainIfThreshold(p.opts.ThresholdBytes)
	if !ok {
		p.mu.Unlock()
		return
	}
	drop := p.enqueueLocked(data)
	p.mu.Unlock()

	if drop != "" {
		p.logger.Print(drop)
	}
}

// enqueueLocked must run under p.mu so that drain order equals queue order.
// It returns the log line for a dropped chunk, to be written after unlocking.
func (p *Pipeline) enqueueLocked(data []byte) string {
	chunk := Chunk{Seq: p.nextSeq, Offset: p.drainedBytes, Data: data}
	p.nextSeq++
	p.drainedBytes += uint64(len(data))
	p.drained.Add(1)
	p.observer.OnChunkDrained(len(data))

	select {
	case p.queue <- chunk:
		p.observer.OnQueueDepth(len(p.queue))
		return ""
	default:
		err := fmt.Errorf("%w: chunk %d: %w", ErrAppendFailed, chunk.Seq, ErrQueueFull)
		p.dropped.Add(1)
		p.lastErr = err
		p.observer.OnDrop(len(data), err)
		return fmt.Sprintf("[pipeline] dropped %d bytes at offset %d: %v", len(data), chunk.Offset, err)
	}
}

func (p *Pipeline) run(ctx context.Context, queue <-chan Chunk, done chan<- struct{}) {
	defer close(done)
	for chunk := range queue {
		p.uploadChunk(ctx, chunk)
	}
}

func (p *Pipeline) uploadChunk(ctx context.Context, chunk Chunk) {
	p.transition(StateReady, StateUploading)
	p.observer.OnQueueDepth(len(p.queue))

	start := time.Now()
	reqCtx, cancel := p.requestContext(ctx)
	err := p.appender.Append(reqCtx, chunk.Data)
	cancel()
	elapsed := time.Since(start)

	p.transition(StateUploading, StateReady)

	if err != nil {
		err = fmt.Errorf("%w: chunk %d: %w", ErrAppendFailed, chunk.Seq, err)
		p.failed.Add(1)
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.observer.OnAppend(len(chunk.Data), elapsed, err)
		p.logger.Printf("[pipeline] dropped %d bytes at offset %d after %s: %v",
			len(chunk.Data), chunk.Offset, elapsed.Round(time.Millisecond), err)
		return
	}

	p.uploaded.Add(1)
	p.upBytes.Add(uint64(len(chunk.Data)))
	p.observer.OnAppend(len(chunk.Data), elapsed, nil)
	p.logger.Printf("[pipeline] chunk %d uploaded: %d bytes at offset %d in %s",
		chunk.Seq, len(chunk.Data), chunk.Offset, elapsed.Round(time.Millisecond))
}

// Stop moves the pipeline to Stopped. Chunks already queued and the one in
// flight are allowed to finish; Stop waits for them until ctx is done, then
// cancels the remaining requests. The sub-threshold remainder is discarded
// unless FlushOnStop is set. Stop is idempotent.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return nil
	}
	prev := p.state
	running := p.queue != nil

	var remainder string
	if p.opts.FlushOnStop && prev.accepting() {
		if rest := p.buffer.Drain(); len(rest) > 0 {
			remainder = p.enqueueLocked(rest)
		}
	} else if rest := p.buffer.Drain(); len(rest) > 0 {
		remainder = fmt.Sprintf("[pipeline] discarding %d buffered bytes below threshold", len(rest))
	}

	p.setStateLocked(StateStopped)
	if running {
		close(p.queue)
	}
	done, cancel := p.done, p.cancel
	p.mu.Unlock()

	if remainder != "" {
		p.logger.Print(remainder)
	}
	p.logger.Printf("[pipeline] stopping (was %s)", prev)
	if !running {
		return nil
	}

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return fmt.Errorf("stop pipeline: %w", ctx.Err())
	}
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the fatal creation error, or nil.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateCreationFailed {
		return p.lastErr
	}
	return nil
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	st := Stats{State: p.state.String()}
	if p.queue != nil {
		st.QueueDepth = len(p.queue)
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	p.mu.Unlock()

	st.Buffered = p.buffer.Len()
	st.TotalBytes = p.buffer.Offset()
	st.ChunksDrained = p.drained.Load()
	st.ChunksUploaded = p.uploaded.Load()
	st.ChunksFailed = p.failed.Load()
	st.ChunksDropped = p.dropped.Load()
	st.BytesUploaded = p.upBytes.Load()
	return st
}

func (p *Pipeline) transition(from, to State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == from {
		p.setStateLocked(to)
	}
}

func (p *Pipeline) setStateLocked(to State) {
	from := p.state
	if from == to {
		return
	}
	p.state = to
	p.observer.OnStateChange(from, to)
}

func (p *Pipeline) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// IsFatal reports whether err ended the pipeline's lifetime.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCreationFailed) || errors.Is(err, storage.ErrInvalidEndpoint)
}
