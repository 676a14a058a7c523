package metrics

import (
	"net/http"
	"time"

	"appendstream/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver implements pipeline.Observer.
type PrometheusObserver struct {
	registry *prometheus.Registry

	appendLatency *prometheus.HistogramVec
	appendBytes   *prometheus.CounterVec
	chunks        *prometheus.CounterVec
	drops         prometheus.Counter
	queueDepth    prometheus.Gauge
	state         *prometheus.GaugeVec
}

var _ pipeline.Observer = (*PrometheusObserver)(nil)

var allStates = []pipeline.State{
	pipeline.StateUninitialized,
	pipeline.StateCreating,
	pipeline.StateReady,
	pipeline.StateUploading,
	pipeline.StateCreationFailed,
	pipeline.StateStopped,
}

func NewPrometheusObserver() *PrometheusObserver {
	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		appendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appendstream_append_duration_seconds",
			Help:    "Latency of append requests against the blob",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		appendBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appendstream_append_bytes_total",
			Help: "Bytes sent in append requests",
		}, []string{"status"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appendstream_chunks_total",
			Help: "Chunks by outcome (drained, uploaded, failed, dropped)",
		}, []string{"outcome"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appendstream_queue_full_total",
			Help: "Chunks dropped because the upload queue was full",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "appendstream_queue_depth",
			Help: "Chunks waiting for the upload worker",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "appendstream_pipeline_state",
			Help: "1 for the current pipeline state, 0 otherwise",
		}, []string{"state"}),
	}

	o.registry.MustRegister(
		o.appendLatency,
		o.appendBytes,
		o.chunks,
		o.drops,
		o.queueDepth,
		o.state,
	)
	for _, s := range allStates {
		o.state.WithLabelValues(s.String()).Set(0)
	}
	o.state.WithLabelValues(pipeline.StateUninitialized.String()).Set(1)
	return o
}

// Registry exposes the underlying registry, mainly for tests.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus text format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

func (o *PrometheusObserver) OnStateChange(from, to pipeline.State) {
	o.state.WithLabelValues(from.String()).Set(0)
	o.state.WithLabelValues(to.String()).Set(1)
}

func (o *PrometheusObserver) OnChunkDrained(int) {
	o.chunks.WithLabelValues("drained").Inc()
}

func (o *PrometheusObserver) OnAppend(size int, elapsed time.Duration, err error) {
	status := "success"
	outcome := "uploaded"
	if err != nil {
		status = "error"
		outcome = "failed"
	}
	o.appendLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	o.appendBytes.WithLabelValues(status).Add(float64(size))
	o.chunks.WithLabelValues(outcome).Inc()
}

func (o *PrometheusObserver) OnDrop(int, error) {
	o.drops.Inc()
	o.chunks.WithLabelValues("dropped").Inc()
}

func (o *PrometheusObserver) OnQueueDepth(depth int) {
	o.queueDepth.Set(float64(depth))
}
