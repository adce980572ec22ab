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

	"golang.org/x/sync/errgroup"

	"github.com/gpoulter/mscanner-sub000/internal/catalog"
	"github.com/gpoulter/mscanner-sub000/internal/ingest"
	"github.com/gpoulter/mscanner-sub000/internal/rank/cache"
	"github.com/gpoulter/mscanner-sub000/internal/store"
	"github.com/gpoulter/mscanner-sub000/pkg/config"
	"github.com/gpoulter/mscanner-sub000/pkg/health"
	"github.com/gpoulter/mscanner-sub000/pkg/kafka"
	"github.com/gpoulter/mscanner-sub000/pkg/logger"
	"github.com/gpoulter/mscanner-sub000/pkg/metrics"
	pkgredis "github.com/gpoulter/mscanner-sub000/pkg/redis"
)

const flushInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)
	slog.Info("starting ingestion service",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.New(cfg.Data.CatalogPath())
	if err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	fs, err := store.Open(cfg.Data.StreamPath())
	if err != nil {
		slog.Error("failed to open feature store", "error", err)
		os.Exit(1)
	}
	defer fs.Close()

	m := metrics.New()
	m.CorpusDocuments.Set(float64(fs.Len()))
	m.CatalogFeatures.Set(float64(cat.Len()))

	var redisClient *pkgredis.Client
	if redisClient, err = pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, cache invalidation disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	checker := health.NewChecker()
	checker.Register("corpus", corpusCheck(cat, fs))
	if redisClient != nil {
		checker.Register("redis", redisCheck(redisClient))
	}
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, func(mux *http.ServeMux) {
			mux.HandleFunc("/healthz", checker.LiveHandler())
			mux.HandleFunc("/readyz", checker.ReadyHandler())
		})
		defer shutdown(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdate)
	defer producer.Close()

	docConsumer := ingest.New(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		ingest.HandleMessage(cat, fs, m),
	))
	flusher := ingest.NewFlusher(cat, fs, producer, flushInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return docConsumer.Start(ctx) })
	g.Go(func() error { return flusher.Run(ctx) })
	if redisClient != nil {
		invalidator := ingest.New(kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.CorpusUpdate,
			ingest.InvalidateHandler(cache.New(redisClient, cfg.Redis)),
		))
		g.Go(func() error { return invalidator.Start(ctx) })
	}

	slog.Info("ingestion service ready")
	if err := g.Wait(); err != nil {
		slog.Error("ingestion service error", "error", err)
	}
	slog.Info("ingestion service stopped")
}

// corpusCheck reports the store and catalog sizes. The corpus is always
// servable once opened, so the status is up with sizes as the message.
func corpusCheck(cat *catalog.Catalog, fs *store.Store) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d features", fs.Len(), cat.Len()),
		}
	}
}

func redisCheck(client *pkgredis.Client) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if err := client.Ping(ctx); err != nil {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: err.Error(),
			}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
