// Package consumer reads ingest events from Kafka and indexes them through
// the indexer engine.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/kafka"
)

// DocumentIndexer is the part of *indexer.Engine the handler needs.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, doc indexer.Document) (indexer.Indexed, error)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that indexes the ingest
// events addressed to table. Events tagged for another index are skipped,
// untagged ones are accepted. Undecodable events are logged and skipped.
// Indexing errors are returned so the consumer can decide whether to
// redeliver.
func HandleMessage(table string, engine DocumentIndexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer", "table", table)
	return func(ctx context.Context, msg kafka.Message) error {
		if idx, ok := msg.Headers[kafka.HeaderIndex]; ok && idx != table {
			logger.Debug("skipping event for another index",
				"index", idx,
				"offset", msg.Offset,
			)
			return nil
		}
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](msg.Value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(msg.Key),
				"offset", msg.Offset,
			)
			return nil
		}
		if event.PrimaryKey == "" {
			event.PrimaryKey = string(msg.Key)
		}
		logger.Debug("processing ingest event",
			"primary_key", event.PrimaryKey,
			"fields", len(event.Fields),
		)
		res, err := engine.IndexDocument(ctx, indexer.Document{
			PrimaryKey: event.PrimaryKey,
			Fields:     event.Fields,
		})
		if err != nil {
			return fmt.Errorf("indexing document %q: %w", event.PrimaryKey, err)
		}
		logger.Info("document indexed",
			"primary_key", event.PrimaryKey,
			"doc_id", res.DocID,
			"terms", res.Terms,
			"lag", time.Since(event.IngestedAt).String(),
		)
		return nil
	}
}
