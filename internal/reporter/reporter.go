package reporter

import (
	"context"
	"io"
	"log"
	"time"

	"appendstream/internal/pipeline"
)

type statsSource interface {
	Stats() pipeline.Stats
}

type Config struct {
	StartupDelay time.Duration
	// Interval between reports. Zero reports once and returns.
	Interval     time.Duration
}

// Reporter periodically logs a one-line summary of the stream.
type Reporter struct {
	source statsSource
	cfg    Config
	logger *log.Logger
}

func New(source statsSource, cfg Config, logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	return &Reporter{source: source, cfg: cfg, logger: logger}
}

// Run blocks until ctx is done, or after a single report when Interval is
// zero.
func (r *Reporter) Run(ctx context.Context) {
	if r.source == nil {
		return
	}
	if r.cfg.StartupDelay > 0 {
		timer := time.NewTimer(r.cfg.StartupDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	prev := r.reportOnce(pipeline.Stats{})
	if r.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev = r.reportOnce(prev)
		}
	}
}

func (r *Reporter) reportOnce(prev pipeline.Stats) pipeline.Stats {
	st := r.source.Stats()
	r.logger.Printf(
		"[stream] state=%s total=%d buffered=%d queued=%d uploaded=%d(+%d) failed=%d dropped=%d bytes=%d",
		st.State,
		st.TotalBytes,
		st.Buffered,
		st.QueueDepth,
		st.ChunksUploaded,
		st.ChunksUploaded-prev.ChunksUploaded,
		st.ChunksFailed,
		st.ChunksDropped,
		st.BytesUploaded,
	)
	if st.LastError != "" && st.LastError != prev.LastError {
		r.logger.Printf("[stream] last error: %s", st.LastError)
	}
	return st
}
