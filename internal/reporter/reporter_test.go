package reporter

import (
	"bytes"
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"appendstream/internal/pipeline"
)

type stubSource struct {
	calls atomic.Int64
}

func (s *stubSource) Stats() pipeline.Stats {
	n := s.calls.Add(1)
	return pipeline.Stats{
		State:          "ready",
		ChunksUploaded: uint64(n),
		LastError:      "append failed: chunk 3",
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReporter_ReportsOnceWithoutInterval(t *testing.T) {
	t.Parallel()

	src := &stubSource{}
	var out syncBuffer
	r := New(src, Config{}, log.New(&out, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if src.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", src.calls.Load())
	}
	logs := out.String()
	if !strings.Contains(logs, "state=ready") || !strings.Contains(logs, "last error: append failed: chunk 3") {
		t.Fatalf("unexpected log output: %q", logs)
	}
}

func TestReporter_ReportsRepeatedlyWithInterval(t *testing.T) {
	t.Parallel()

	src := &stubSource{}
	var out syncBuffer
	r := New(src, Config{Interval: 15 * time.Millisecond}, log.New(&out, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if src.calls.Load() < 2 {
		t.Fatalf("calls = %d, want >= 2", src.calls.Load())
	}
	if n := strings.Count(out.String(), "last error:"); n != 1 {
		t.Fatalf("unchanged last error logged %d times, want 1", n)
	}
}

func TestReporter_StartupDelayHonoursContext(t *testing.T) {
	t.Parallel()

	src := &stubSource{}
	r := New(src, Config{StartupDelay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if src.calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", src.calls.Load())
	}
}
