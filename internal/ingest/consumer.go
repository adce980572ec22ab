package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gpoulter/mscanner-sub000/internal/catalog"
	"github.com/gpoulter/mscanner-sub000/internal/store"
	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
	"github.com/gpoulter/mscanner-sub000/pkg/kafka"
	"github.com/gpoulter/mscanner-sub000/pkg/metrics"
	"github.com/gpoulter/mscanner-sub000/pkg/resilience"
)

// Consumer wraps a Kafka consumer to drive the ingestion pipeline.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a Consumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *Consumer {
	return &Consumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("ingest consumer starting")
	return c.consumer.Start(ctx)
}

// Close closes the underlying Kafka consumer.
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// HandleMessage returns a Kafka MessageHandler that registers each document
// event in the catalog and appends its feature vector to the store.
// Undecodable events and replays of already-stored documents are logged and
// skipped so a poisoned message cannot wedge the partition.
func HandleMessage(cat *catalog.Catalog, fs *store.Store, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			if m != nil {
				m.StreamErrorsTotal.WithLabelValues("decode").Inc()
			}
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		vector := cat.RegisterDocument(event.Features)
		if err := fs.Add(event.DocID, event.Date, vector); err != nil {
			if errors.Is(err, apperrors.ErrDocumentExists) {
				logger.Warn("skipping replayed document", "doc_id", event.DocID)
				return nil
			}
			return fmt.Errorf("storing document %d: %w", event.DocID, err)
		}

		if m != nil {
			m.DocsIngestedTotal.Inc()
			m.CorpusDocuments.Set(float64(fs.Len()))
			m.CatalogFeatures.Set(float64(cat.Len()))
		}
		logger.Debug("document ingested",
			"doc_id", event.DocID,
			"features", len(vector),
		)
		return nil
	}
}

// Flusher periodically flushes the feature stream, saves the catalog, and
// announces corpus growth on the corpus-update topic.
type Flusher struct {
	catalog  *catalog.Catalog
	store    *store.Store
	producer *kafka.Producer
	interval time.Duration
	logger   *slog.Logger

	lastDocs int
}

// NewFlusher creates a Flusher. producer may be nil to disable update
// notifications.
func NewFlusher(cat *catalog.Catalog, fs *store.Store, producer *kafka.Producer, interval time.Duration) *Flusher {
	return &Flusher{
		catalog:  cat,
		store:    fs,
		producer: producer,
		interval: interval,
		logger:   slog.Default().With("component", "ingest-flusher"),
		lastDocs: fs.Len(),
	}
}

// Run flushes on every tick until ctx is cancelled, then performs one final
// flush so no buffered records are lost on shutdown.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := f.flush(ctx); err != nil {
				f.logger.Error("flush failed", "error", err)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := f.flush(flushCtx); err != nil {
				return fmt.Errorf("final flush: %w", err)
			}
			return nil
		}
	}
}

func (f *Flusher) flush(ctx context.Context) error {
	docs := f.store.Len()
	if docs == f.lastDocs {
		return nil
	}
	if err := f.store.Flush(); err != nil {
		return fmt.Errorf("flushing feature stream: %w", err)
	}
	if err := f.catalog.Save(); err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	f.logger.Info("corpus flushed", "documents", docs, "added", docs-f.lastDocs)
	f.lastDocs = docs

	if f.producer != nil {
		event := CorpusUpdateEvent{
			Documents: docs,
			Features:  f.catalog.Len(),
			UpdatedAt: time.Now().UTC(),
		}
		err := resilience.WithTimeout(ctx, 10*time.Second, "corpus-update-publish", func(ctx context.Context) error {
			return f.producer.Publish(ctx, kafka.Event{Key: "corpus", Value: event})
		})
		if err != nil {
			return fmt.Errorf("publishing corpus update: %w", err)
		}
	}
	return nil
}
