package ingest

import (
	"context"
	"log/slog"

	"github.com/gpoulter/mscanner-sub000/internal/rank/cache"
	"github.com/gpoulter/mscanner-sub000/pkg/kafka"
)

// InvalidateHandler returns a Kafka MessageHandler for the corpus-update
// topic that drops all cached query results, since any stored ranking may
// omit the newly ingested documents.
func InvalidateHandler(rc *cache.ResultCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "cache-invalidator")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[CorpusUpdateEvent](value)
		if err != nil {
			logger.Error("failed to decode corpus update", "error", err)
			return nil
		}
		if err := rc.Invalidate(ctx); err != nil {
			return err
		}
		logger.Info("query cache invalidated",
			"documents", event.Documents,
			"features", event.Features,
		)
		return nil
	}
}
