// Package segment accumulates existence-only postings in memory as one
// roaring bitmap per term and writes a whole generation ("segment") to the
// store once a cost estimate crosses a threshold. Flushing is synchronous on
// the caller that pushes the estimate over the threshold.
//
// Postings written here become visible only when their segment is flushed.
// The positional postings of the transaction log become visible on commit,
// so the two write paths have different consistency windows.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/metrics"
	"github.com/RoaringBitmap/roaring/v2"
)

const (
	// DefaultMaxTermVector is the default flush threshold in cost units.
	DefaultMaxTermVector = 10_000_000

	// TermCost is charged once per distinct term in a segment: room for
	// 2000 eight-byte document slots.
	TermCost = 8 * 2000
)

// Flushed describes a segment that reached the store.
type Flushed struct {
	SegmentID int64 `json:"segmentId"`
	DocBase   int64 `json:"docBase"`
	Terms     int   `json:"terms"`
	Postings  int   `json:"postings"`
}

// FlushListener is told about every successful flush.
type FlushListener interface {
	SegmentFlushed(ctx context.Context, f Flushed)
}

// Buffer is the in-memory segment of one writer. It is not safe for
// concurrent use; each writer owns its own Buffer.
type Buffer struct {
	table     store.Table
	schema    schema.Schema
	threshold int64
	listener  FlushListener
	metrics   *metrics.Metrics
	logger    *slog.Logger

	terms        map[string]*roaring.Bitmap
	estimate     int64
	postings     int
	docBase      int64
	segmentID    int64
	needsAdvance bool
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithMaxTermVector sets the flush threshold.
func WithMaxTermVector(n int64) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithFlushListener registers l for flush notifications.
func WithFlushListener(l FlushListener) Option {
	return func(b *Buffer) { b.listener = l }
}

// WithMetrics records flushes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Buffer) { b.metrics = m }
}

// NewBuffer claims a fresh segment id from the segment counter of t and
// returns an empty buffer for it.
func NewBuffer(ctx context.Context, t store.Table, sch schema.Schema, opts ...Option) (*Buffer, error) {
	b := &Buffer{
		table:     t,
		schema:    sch,
		threshold: DefaultMaxTermVector,
		terms:     make(map[string]*roaring.Bitmap),
		docBase:   -1,
		logger:    slog.Default().With("component", "segment-buffer", "table", t.Name()),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.advance(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// SegmentID is the id the buffered postings will be flushed under.
func (b *Buffer) SegmentID() int64 { return b.segmentID }

// Len is the number of distinct buffered terms.
func (b *Buffer) Len() int { return len(b.terms) }

// Estimate is the current cost estimate.
func (b *Buffer) Estimate() int64 { return b.estimate }

// DocBase is the lowest document id recorded in the current segment, or -1.
func (b *Buffer) DocBase() int64 { return b.docBase }

// Contains reports whether docID is buffered under term.
func (b *Buffer) Contains(term string, docID int64) bool {
	bm, ok := b.terms[term]
	if !ok || b.docBase < 0 || docID < b.docBase {
		return false
	}
	return bm.Contains(uint32(docID - b.docBase))
}

// Record marks docID as containing term and flushes when the estimate
// exceeds the threshold. It reports whether a flush happened. Bits are stored
// relative to the segment's base; a document below the base lowers it and
// shifts every buffered bitmap up by the difference.
func (b *Buffer) Record(ctx context.Context, term string, docID int64) (bool, error) {
	if b.needsAdvance {
		if err := b.advance(ctx); err != nil {
			return false, err
		}
	}
	if docID < 0 {
		return false, fmt.Errorf("%w: document id %d", apperrors.ErrInvalidInput, docID)
	}
	if b.docBase < 0 {
		b.docBase = docID
	}
	if docID < b.docBase {
		b.rebase(docID)
	}

	bm, ok := b.terms[term]
	if !ok {
		bm = roaring.New()
		b.terms[term] = bm
		b.estimate += TermCost
	}
	if bm.CheckedAdd(uint32(docID - b.docBase)) {
		b.postings++
	}

	if b.estimate <= b.threshold {
		return false, nil
	}
	if _, err := b.Flush(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Buffer) rebase(base int64) {
	shift := b.docBase - base
	for term, bm := range b.terms {
		b.terms[term] = roaring.AddOffset64(bm, shift)
	}
	b.docBase = base
}

func (b *Buffer) sortedTerms() []string {
	terms := make([]string, 0, len(b.terms))
	for t := range b.terms {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

func (b *Buffer) reset() {
	b.terms = make(map[string]*roaring.Bitmap)
	b.estimate = 0
	b.postings = 0
	b.docBase = -1
}
