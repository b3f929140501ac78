package segment

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
)

// advance claims the next segment id from the shared counter.
func (b *Buffer) advance(ctx context.Context) error {
	id, err := b.table.Increment(ctx, b.schema.RowSegment, b.schema.FamilySequence, []byte(b.schema.QualifierSegment), 1)
	if err != nil {
		b.needsAdvance = true
		return fmt.Errorf("advancing segment counter: %w", err)
	}
	b.segmentID = id
	b.needsAdvance = false
	return nil
}

// Flush writes every buffered term as one row under the current segment id,
// plus the segment's metadata row, in a single non-atomic batch. On success
// the buffer is cleared and a new segment id is claimed. On batch failure the
// buffer is kept so the flush can be retried; rows that did land are
// rewritten identically by the retry. Flushing an empty buffer writes
// nothing.
func (b *Buffer) Flush(ctx context.Context) (Flushed, error) {
	if b.needsAdvance {
		if err := b.advance(ctx); err != nil {
			return Flushed{}, err
		}
	}
	if len(b.terms) == 0 {
		return Flushed{SegmentID: b.segmentID, DocBase: -1}, nil
	}

	puts, err := b.flushPuts()
	if err != nil {
		return Flushed{}, err
	}
	info := Flushed{
		SegmentID: b.segmentID,
		DocBase:   b.docBase,
		Terms:     len(b.terms),
		Postings:  b.postings,
	}
	if err := b.table.BatchPut(ctx, puts); err != nil {
		b.metrics.Flush(0, err)
		b.logger.Error("segment flush failed, keeping buffer",
			"segment_id", info.SegmentID,
			"terms", info.Terms,
			"error", err,
		)
		return Flushed{}, fmt.Errorf("flushing segment %d: %w", info.SegmentID, err)
	}
	b.metrics.Flush(info.Terms, nil)
	b.logger.Info("segment flushed",
		"segment_id", info.SegmentID,
		"doc_base", info.DocBase,
		"terms", info.Terms,
		"postings", info.Postings,
	)

	b.reset()
	advanceErr := b.advance(ctx)
	if b.listener != nil {
		b.listener.SegmentFlushed(ctx, info)
	}
	if advanceErr != nil {
		return info, fmt.Errorf("segment %d flushed: %w", info.SegmentID, advanceErr)
	}
	return info, nil
}

func (b *Buffer) flushPuts() ([]store.Put, error) {
	puts := make([]store.Put, 0, len(b.terms)+1)
	qualifier := []byte(b.schema.QualifierDocuments)
	for _, term := range b.sortedTerms() {
		bm := b.terms[term]
		bm.RunOptimize()
		data, err := bm.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("serializing bitmap of %q: %w", term, err)
		}
		puts = append(puts, store.NewPut(b.schema.SegmentTermRow(b.segmentID, term), b.schema.FamilyTermVector, qualifier, data))
	}
	puts = append(puts, store.NewPut(b.schema.SegmentRow(b.segmentID), b.schema.FamilySequence,
		[]byte(b.schema.QualifierDocBase), schema.DocKey(b.docBase)))
	return puts, nil
}
