// Package postings iterates the positional posting list of one term, the
// per-document rows the transaction log writes under "field/text".
package postings

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// NoMoreDocs is what Doc reports once the cursor is exhausted. No assigned
// document id can reach it.
const NoMoreDocs = math.MaxInt32

// Reader is a cursor over one term's postings. It holds a pooled table handle
// from NewReader until Close. A Reader is not safe for concurrent use.
type Reader struct {
	pool   *store.Pool
	table  store.Table
	schema schema.Schema
	codec  codec.Codec
	logger *slog.Logger

	term   schema.Term
	docs   []int64
	cursor int

	positions []int
	loaded    bool
	next      int
}

// NewReader checks out a handle for the named index table. The codec must be
// the one the index was created with.
func NewReader(ctx context.Context, pool *store.Pool, table string, sch schema.Schema, c codec.Codec) (*Reader, error) {
	t, err := pool.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	return &Reader{
		pool:   pool,
		table:  t,
		schema: sch,
		codec:  c,
		logger: slog.Default().With("component", "postings", "table", table),
		cursor: -1,
	}, nil
}

// Seek loads every document id posted under term, sorted numerically, and
// positions the cursor before the first one. The store returns qualifiers in
// byte order, which only matches numeric order for non-negative ids of equal
// width, so the list is sorted here regardless.
func (r *Reader) Seek(ctx context.Context, term schema.Term) error {
	if r.table == nil {
		return fmt.Errorf("postings reader: %w", apperrors.ErrClosed)
	}
	cells, err := r.table.GetFamily(ctx, r.schema.TermRow(term), r.schema.FamilyTermVector)
	if err != nil {
		return fmt.Errorf("seeking %s: %w", term, err)
	}
	docs := make([]int64, 0, len(cells))
	for _, c := range cells {
		id, err := schema.DocID(c.Qualifier)
		if err != nil {
			return fmt.Errorf("posting of %s: %w", term, err)
		}
		docs = append(docs, id)
	}
	slices.Sort(docs)

	r.term = term
	r.docs = docs
	r.cursor = -1
	r.resetPositions()
	r.logger.Debug("seek", "term", term.String(), "doc_freq", len(docs))
	return nil
}

// Term is the term of the last Seek.
func (r *Reader) Term() schema.Term { return r.term }

// DocFreq is the number of documents posted under the current term.
func (r *Reader) DocFreq() int { return len(r.docs) }

// Next advances to the next document. It returns false once exhausted.
func (r *Reader) Next() bool {
	if r.cursor < len(r.docs) {
		r.cursor++
	}
	r.resetPositions()
	return r.cursor < len(r.docs)
}

// SkipTo positions the cursor on the first document >= target and reports
// whether there is one. The search always covers the whole list, so skipping
// backwards is allowed.
func (r *Reader) SkipTo(target int64) bool {
	r.cursor = sort.Search(len(r.docs), func(i int) bool { return r.docs[i] >= target })
	r.resetPositions()
	return r.cursor < len(r.docs)
}

// Doc is the current document id: -1 before the first Next, NoMoreDocs after
// the last.
func (r *Reader) Doc() int64 {
	switch {
	case r.cursor < 0:
		return -1
	case r.cursor >= len(r.docs):
		return NoMoreDocs
	}
	return r.docs[r.cursor]
}

// Freq is the number of positions of the term in the current document. The
// positions are fetched on first use and kept until the cursor moves.
func (r *Reader) Freq(ctx context.Context) (int, error) {
	if err := r.loadPositions(ctx); err != nil {
		return 0, err
	}
	return len(r.positions), nil
}

// NextPosition returns the next position in the current document. Calling it
// more than Freq times fails with ErrPositionsExhausted.
func (r *Reader) NextPosition(ctx context.Context) (int, error) {
	if err := r.loadPositions(ctx); err != nil {
		return 0, err
	}
	if r.next >= len(r.positions) {
		return 0, fmt.Errorf("%w: %s in document %d has %d positions",
			apperrors.ErrPositionsExhausted, r.term, r.Doc(), len(r.positions))
	}
	p := r.positions[r.next]
	r.next++
	return p, nil
}

// Positions returns the whole decoded position list of the current document.
func (r *Reader) Positions(ctx context.Context) ([]int, error) {
	if err := r.loadPositions(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(r.positions), nil
}

// Payload is always nil; payloads are not stored.
func (r *Reader) Payload() []byte { return nil }

// PayloadAvailable is always false.
func (r *Reader) PayloadAvailable() bool { return false }

// Read fills docs and freqs with the following documents and their
// frequencies and returns how many it filled. It stops at the shorter of the
// two slices; zero means the cursor is exhausted.
func (r *Reader) Read(ctx context.Context, docs []int64, freqs []int) (int, error) {
	n := min(len(docs), len(freqs))
	i := 0
	for i < n && r.Next() {
		freq, err := r.Freq(ctx)
		if err != nil {
			return i, err
		}
		docs[i] = r.Doc()
		freqs[i] = freq
		i++
	}
	return i, nil
}

// Close returns the table handle to the pool and discards cursor state.
func (r *Reader) Close() error {
	if r.table == nil {
		return nil
	}
	r.pool.Put(r.table)
	r.table = nil
	r.docs = nil
	r.cursor = -1
	r.resetPositions()
	return nil
}

func (r *Reader) resetPositions() {
	r.positions = nil
	r.loaded = false
	r.next = 0
}

func (r *Reader) loadPositions(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	if r.table == nil {
		return fmt.Errorf("postings reader: %w", apperrors.ErrClosed)
	}
	if r.cursor < 0 || r.cursor >= len(r.docs) {
		return fmt.Errorf("%w: cursor of %s is not on a document", apperrors.ErrInvalidInput, r.term)
	}
	doc := r.docs[r.cursor]
	raw, err := r.table.GetCell(ctx, r.schema.TermRow(r.term), r.schema.FamilyTermVector, schema.DocKey(doc))
	if err != nil {
		return fmt.Errorf("positions of %s in %d: %w", r.term, doc, err)
	}
	positions, err := r.codec.Decode(raw)
	if err != nil {
		return fmt.Errorf("positions of %s in %d: %w", r.term, doc, err)
	}
	r.positions = positions
	r.loaded = true
	return nil
}
