package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Sink string

const (
	SinkAzure Sink = "azure"
	SinkLocal Sink = "local"
	SinkS3    Sink = "s3"
)

// Config holds runtime configuration for the streamer.
type Config struct {
	Sink           Sink
	BlobEndpoint   string
	ThresholdBytes int
	QueueSize      int
	RequestTimeout time.Duration
	StopTimeout    time.Duration
	FlushOnStop    bool
	StatsInterval  time.Duration

	// Upstream throttle, applied by the ingest endpoint only.
	MinFrameInterval time.Duration
	MaxFrameBytes    int64

	AzureAPIVersion string

	LocalRoot     string
	LocalBlobName string

	S3Bucket       string
	S3Prefix       string
	S3BlobName     string
	S3Endpoint     string
	S3Region       string
	S3UsePathStyle bool

	// Static credentials, mainly for MinIO. Empty uses the default AWS chain.
	S3AccessKey string
	S3SecretKey string

	// ControlToken guards the stop endpoint. Empty leaves it open.
	ControlToken string

	ListenAddr       string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		Sink:             Sink(strings.ToLower(getenv("SINK", string(SinkAzure)))),
		BlobEndpoint:     getenv("BLOB_ENDPOINT", ""),
		ThresholdBytes:   getenvInt("THRESHOLD_BYTES", 256*1024),
		QueueSize:        getenvInt("QUEUE_SIZE", 16),
		RequestTimeout:   getenvDuration("REQUEST_TIMEOUT", 30*time.Second),
		StopTimeout:      getenvDuration("STOP_TIMEOUT", 10*time.Second),
		FlushOnStop:      getenvBool("FLUSH_ON_STOP", false),
		StatsInterval:    getenvDuration("STATS_INTERVAL", time.Minute),
		MinFrameInterval: getenvDuration("MIN_FRAME_INTERVAL", 100*time.Millisecond),
		MaxFrameBytes:    getenvInt64("MAX_FRAME_BYTES", 8*1024*1024),
		AzureAPIVersion:  getenv("AZURE_API_VERSION", ""),
		LocalRoot:        getenv("LOCAL_ROOT", "./data"),
		LocalBlobName:    getenv("LOCAL_BLOB_NAME", "stream.bin"),
		S3Bucket:         getenv("S3_BUCKET", ""),
		S3Prefix:         getenv("S3_PREFIX", ""),
		S3BlobName:       getenv("S3_BLOB_NAME", "stream"),
		S3Endpoint:       getenv("S3_ENDPOINT", ""),
		S3Region:         getenv("S3_REGION", ""),
		S3UsePathStyle:   getenvBool("S3_USE_PATH_STYLE", false),
		S3AccessKey:      getenv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      getenv("S3_SECRET_ACCESS_KEY", ""),
		ControlToken:     getenv("CONTROL_TOKEN", ""),
		ListenAddr:       getenv("LISTEN_ADDR", ":8080"),
		HTTPReadTimeout:  getenvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWriteTimeout: getenvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		HTTPIdleTimeout:  getenvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}

	switch cfg.Sink {
	case SinkAzure:
		if strings.TrimSpace(cfg.BlobEndpoint) == "" {
			return Config{}, fmt.Errorf("BLOB_ENDPOINT cannot be empty for sink %q", cfg.Sink)
		}
	case SinkLocal:
		if strings.TrimSpace(cfg.LocalRoot) == "" {
			return Config{}, fmt.Errorf("LOCAL_ROOT cannot be empty")
		}
	case SinkS3:
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return Config{}, fmt.Errorf("S3_BUCKET cannot be empty for sink %q", cfg.Sink)
		}
	default:
		return Config{}, fmt.Errorf("unknown SINK %q (want azure, local or s3)", cfg.Sink)
	}

	if cfg.ThresholdBytes <= 0 {
		cfg.ThresholdBytes = 256 * 1024
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.MinFrameInterval < 0 {
		cfg.MinFrameInterval = 0
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 8 * 1024 * 1024
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	return cfg, nil
}

// Redacted returns the endpoint with its query string (the SAS token) masked,
// for logging.
func (c Config) Redacted() string {
	endpoint := strings.TrimSpace(c.BlobEndpoint)
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i] + "?<redacted>"
	}
	return endpoint
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
