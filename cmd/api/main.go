package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceapi/internal/api"
	"github.com/your-org/faceapi/internal/api/handlers"
	"github.com/your-org/faceapi/internal/api/ws"
	"github.com/your-org/faceapi/internal/config"
	"github.com/your-org/faceapi/internal/detection"
	"github.com/your-org/faceapi/internal/identity"
	"github.com/your-org/faceapi/internal/imagesrc"
	"github.com/your-org/faceapi/internal/matching"
	"github.com/your-org/faceapi/internal/observability"
	"github.com/your-org/faceapi/internal/queue"
	"github.com/your-org/faceapi/internal/search"
	"github.com/your-org/faceapi/internal/similarity"
	"github.com/your-org/faceapi/internal/storage"
	"github.com/your-org/faceapi/internal/vision"
)

// galleryStore is what the identity service and search engine need from a backend.
type galleryStore interface {
	identity.Store
	search.Gallery
	Ping(ctx context.Context) error
	Close()
}

type blobStore interface {
	identity.Blobs
	Ping(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting face API service", "port", cfg.Server.Port, "store", cfg.Store.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, blobs, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("open stores", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Face oracle
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
	slog.Info("face oracle ready", "version", oracle.Version())

	pipeline := detection.NewPipeline(oracle, cfg.Timeouts.Oracle)
	normalizer := imagesrc.NewNormalizer(imagesrc.NewHTTPFetcher(cfg.Timeouts.Fetch, cfg.Fetch.MaxBytes, cfg.Fetch.CacheTTL))
	normalizer.SetMaxPixels(cfg.Fetch.MaxPixels)
	scorer := similarity.Cosine{}

	svc := identity.NewService(store, blobs, normalizer, pipeline, cfg.Timeouts.Store)
	matcher := matching.NewEngine(normalizer, pipeline, scorer, cfg.Vision.PoolSize)
	searcher := search.NewEngine(store, normalizer, pipeline, scorer, cfg.Search, cfg.Timeouts.Store)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	checks := map[string]handlers.Check{
		"store": store.Ping,
		"blobs": blobs.Ping,
	}

	var tasks identity.TaskPublisher
	if cfg.NATS.Enabled {
		producer, consumer, err := openQueue(ctx, cfg, hub)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		defer consumer.Close()

		svc.SetPublisher(producer)
		tasks = producer
		checks["queue"] = func(context.Context) error { return producer.Ping() }
	} else {
		// Without a bus, events go straight to websocket clients of this process.
		svc.SetPublisher(hub)
		slog.Warn("nats disabled, re-indexing unavailable")
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:       cfg.Server.APIKey,
		MaxBodyBytes: int64(cfg.Server.MaxBodyMB) << 20,
		Identity:     svc,
		Matching:     matcher,
		Search:       searcher,
		Detector:     pipeline,
		Resolver:     normalizer,
		Tasks:        tasks,
		Hub:          hub,
		Checks:       checks,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}

// openStores connects the configured identity store and its blob store.
func openStores(ctx context.Context, cfg *config.Config) (galleryStore, blobStore, error) {
	if cfg.Store.Backend == "memory" {
		slog.Warn("using in-memory identity store; data is lost on restart")
		return storage.NewMemoryStore(), storage.NewMemoryBlobStore(), nil
	}

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to minio: %w", err)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}
	return db, minioStore, nil
}

// openQueue connects to NATS and relays identity events to the hub.
func openQueue(ctx context.Context, cfg *config.Config, hub *ws.Hub) (*queue.Producer, *queue.Consumer, error) {
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("create event consumer: %w", err)
	}

	// Every API replica needs its own durable to see every event.
	hostname, _ := os.Hostname()
	err = consumer.ConsumeEvents(ctx, "api-events-"+hostname, func(ctx context.Context, msg jetstream.Msg) error {
		ev, err := queue.DecodeIdentityEvent(msg.Data())
		if err != nil {
			return err
		}
		hub.BroadcastEvent(ev)
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}
	return producer, consumer, nil
}
