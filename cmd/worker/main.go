package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceapi/internal/config"
	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/identity"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/observability"
	"github.com/your-org/faceapi/internal/queue"
	"github.com/your-org/faceapi/internal/resultcode"
	"github.com/your-org/faceapi/internal/storage"
	"github.com/your-org/faceapi/internal/vision"
)

const metricsAddr = ":8082"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting re-index worker",
		"workers", cfg.Vision.ReindexWorkers,
		"cpu_cores", runtime.NumCPU(),
	)

	// The worker shares enrolled images with the API, so only durable backends work.
	if cfg.Store.Backend != "postgres" {
		slog.Error("re-index worker requires the postgres store backend", "backend", cfg.Store.Backend)
		os.Exit(1)
	}
	if !cfg.NATS.Enabled {
		slog.Error("re-index worker requires nats")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize ONNX Runtime
	shutdownRuntime, err := vision.InitRuntime()
	if err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer shutdownRuntime()

	oracle, err := vision.NewOracle(cfg.Vision)
	if err != nil {
		slog.Error("init face oracle", "error", err)
		os.Exit(1)
	}
	defer oracle.Close()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	pipeline := detection.NewPipeline(oracle, cfg.Timeouts.Oracle)
	normalizer := imagesrc.NewNormalizer(nil)
	normalizer.SetMaxPixels(cfg.Fetch.MaxPixels)
	svc := identity.NewService(db, minioStore, normalizer, pipeline, cfg.Timeouts.Store)
	svc.SetPublisher(producer)

	slog.Info("face oracle initialized", "version", oracle.Version())

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeReindex(ctx, "reindex-workers", func(ctx context.Context, msg jetstream.Msg) error {
		task, err := queue.DecodeReindexTask(msg.Data())
		if err != nil {
			// Malformed tasks can never succeed.
			return resultcode.Validationf("%v", err)
		}
		return svc.Reindex(ctx, task)
	}, cfg.Vision.ReindexWorkers)
	if err != nil {
		slog.Error("start reindex consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.ReindexQueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
