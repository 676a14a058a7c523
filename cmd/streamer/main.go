package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"appendstream/internal/config"
	"appendstream/internal/httpapi"
	"appendstream/internal/ingest"
	"appendstream/internal/metrics"
	"appendstream/internal/pipeline"
	"appendstream/internal/reporter"
	"appendstream/internal/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appender, err := newAppender(ctx, cfg)
	if err != nil {
		log.Fatalf("init %s sink: %v", cfg.Sink, err)
	}

	observer := metrics.NewPrometheusObserver()
	p, err := pipeline.New(appender, ingest.NewBuffer(), pipeline.Options{
		ThresholdBytes: cfg.ThresholdBytes,
		QueueSize:      cfg.QueueSize,
		RequestTimeout: cfg.RequestTimeout,
		FlushOnStop:    cfg.FlushOnStop,
		Logger:         log.Default(),
		Observer:       observer,
	})
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	if cfg.ControlToken == "" {
		log.Printf("warning: CONTROL_TOKEN is empty; stream stop endpoint is unauthenticated")
	}
	trigger := httpapi.NewStopTrigger(p.Stop, cfg.StopTimeout, log.Default())
	api := httpapi.New(cfg, p, trigger, observer.Handler())

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.NewEcho(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	// Frames posted before the blob exists stay buffered and are drained
	// once Start succeeds. A creation failure does not stop the server, so
	// /healthz can report it.
	g.Go(func() error {
		switch cfg.Sink {
		case config.SinkAzure:
			log.Printf("creating append blob %s", cfg.Redacted())
		case config.SinkLocal:
			log.Printf("appending to %s/%s", cfg.LocalRoot, cfg.LocalBlobName)
		case config.SinkS3:
			log.Printf("writing segments to s3://%s/%s%s", cfg.S3Bucket, cfg.S3Prefix, cfg.S3BlobName)
		}
		if err := p.Start(gctx); err != nil && !errors.Is(err, pipeline.ErrStopped) {
			log.Printf("stream disabled: %v", err)
		}
		return nil
	})

	if cfg.StatsInterval > 0 {
		rep := reporter.New(p, reporter.Config{StartupDelay: cfg.StatsInterval, Interval: cfg.StatsInterval}, log.Default())
		g.Go(func() error {
			rep.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-trigger.Done():
			log.Printf("stream stopped via API; server keeps serving status")
			<-gctx.Done()
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
		defer cancel()
		return errors.Join(p.Stop(stopCtx), server.Shutdown(stopCtx))
	})

	if err := g.Wait(); err != nil {
		log.Printf("shutdown error: %v", err)
		os.Exit(1)
	}
}

func newAppender(ctx context.Context, cfg config.Config) (storage.Appender, error) {
	switch cfg.Sink {
	case config.SinkAzure:
		return storage.NewAzureAppendBlob(cfg.BlobEndpoint, storage.AzureOptions{
			HTTPClient: &http.Client{},
			APIVersion: cfg.AzureAPIVersion,
			Logger:     log.Default(),
		})
	case config.SinkLocal:
		return storage.NewLocalAppendFile(cfg.LocalRoot, cfg.LocalBlobName)
	case config.SinkS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.S3Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
		}
		if cfg.S3AccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			}
			o.UsePathStyle = cfg.S3UsePathStyle
		})
		return storage.NewS3SegmentStore(storage.S3Options{
			Client: client,
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Blob:   cfg.S3BlobName,
		})
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}
