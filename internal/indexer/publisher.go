package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/kafka"
)

// Publisher sends one event; *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// SegmentFlushedEvent announces that a segment became readable.
type SegmentFlushedEvent struct {
	Table     string    `json:"table"`
	SegmentID int64     `json:"segment_id"`
	DocBase   int64     `json:"doc_base"`
	Terms     int       `json:"terms"`
	Postings  int       `json:"postings"`
	FlushedAt time.Time `json:"flushed_at"`
}

// FlushPublisher is a segment.FlushListener that publishes every flush.
// Publish failures are logged; the segment is already durable.
type FlushPublisher struct {
	table     string
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger
}

var _ segment.FlushListener = (*FlushPublisher)(nil)

func NewFlushPublisher(table string, p Publisher) *FlushPublisher {
	return &FlushPublisher{
		table:     table,
		publisher: p,
		now:       time.Now,
		logger:    slog.Default().With("component", "flush-publisher", "table", table),
	}
}

func (fp *FlushPublisher) SegmentFlushed(ctx context.Context, f segment.Flushed) {
	event := kafka.Event{
		Key:     fp.table,
		Headers: map[string]string{kafka.HeaderIndex: fp.table},
		Value: SegmentFlushedEvent{
			Table:     fp.table,
			SegmentID: f.SegmentID,
			DocBase:   f.DocBase,
			Terms:     f.Terms,
			Postings:  f.Postings,
			FlushedAt: fp.now().UTC(),
		},
	}
	if err := fp.publisher.Publish(ctx, event); err != nil {
		fp.logger.Error("publishing segment flush failed",
			"segment_id", f.SegmentID,
			"error", err,
		)
	}
}
