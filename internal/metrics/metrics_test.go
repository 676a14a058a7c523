package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"appendstream/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserver_CountsOutcomes(t *testing.T) {
	t.Parallel()

	o := NewPrometheusObserver()
	o.OnChunkDrained(10)
	o.OnChunkDrained(10)
	o.OnChunkDrained(10)
	o.OnAppend(10, 5*time.Millisecond, nil)
	o.OnAppend(10, 5*time.Millisecond, errors.New("status 500"))
	o.OnDrop(10, pipeline.ErrQueueFull)
	o.OnQueueDepth(3)

	checks := map[string]float64{
		"drained":  3,
		"uploaded": 1,
		"failed":   1,
		"dropped":  1,
	}
	for outcome, want := range checks {
		if got := testutil.ToFloat64(o.chunks.WithLabelValues(outcome)); got != want {
			t.Fatalf("chunks{outcome=%q} = %v, want %v", outcome, got, want)
		}
	}
	if got := testutil.ToFloat64(o.appendBytes.WithLabelValues("success")); got != 10 {
		t.Fatalf("append bytes success = %v, want 10", got)
	}
	if got := testutil.ToFloat64(o.queueDepth); got != 3 {
		t.Fatalf("queue depth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(o.drops); got != 1 {
		t.Fatalf("queue full = %v, want 1", got)
	}
}

func TestPrometheusObserver_StateGaugeIsOneHot(t *testing.T) {
	t.Parallel()

	o := NewPrometheusObserver()
	o.OnStateChange(pipeline.StateUninitialized, pipeline.StateCreating)
	o.OnStateChange(pipeline.StateCreating, pipeline.StateCreationFailed)

	for _, s := range allStates {
		want := 0.0
		if s == pipeline.StateCreationFailed {
			want = 1
		}
		if got := testutil.ToFloat64(o.state.WithLabelValues(s.String())); got != want {
			t.Fatalf("state{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestPrometheusObserver_HandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	o := NewPrometheusObserver()
	o.OnChunkDrained(1)

	srv := httptest.NewServer(o.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `appendstream_chunks_total{outcome="drained"} 1`) {
		t.Fatalf("metrics output missing drained counter:\n%s", body)
	}
}
