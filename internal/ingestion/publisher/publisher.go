// Package publisher queues validated documents on the ingest topic for the
// indexer to consume.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/kafka"
)

// EventPublisher sends one event; *kafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher turns ingest requests into ingest events for one index.
type Publisher struct {
	producer EventPublisher
	table    string
	now      func() time.Time
	logger   *slog.Logger
}

func New(producer EventPublisher, table string) *Publisher {
	return &Publisher{
		producer: producer,
		table:    table,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher", "table", table),
	}
}

// Ingest publishes the document keyed by its primary key, so every version
// of one document lands on the same partition in order. Nothing is
// persisted here: a failed publish means the document was not accepted.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	event := kafka.Event{
		Key:     req.PrimaryKey,
		Headers: map[string]string{kafka.HeaderIndex: p.table},
		Value: ingestion.IngestEvent{
			PrimaryKey: req.PrimaryKey,
			Fields:     req.Fields,
			IngestedAt: p.now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing %q: %w", req.PrimaryKey, err)
	}
	p.logger.Debug("document queued", "primary_key", req.PrimaryKey, "fields", len(req.Fields))
	return &ingestion.IngestResponse{
		PrimaryKey: req.PrimaryKey,
		Status:     ingestion.StatusQueued,
	}, nil
}
