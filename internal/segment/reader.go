package segment

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2"
)

// Reader answers "which documents contain term" from flushed segments.
// Segments still buffered by a writer are invisible to it.
type Reader struct {
	pool   *store.Pool
	table  string
	schema schema.Schema
}

func NewReader(pool *store.Pool, table string, sch schema.Schema) *Reader {
	return &Reader{pool: pool, table: table, schema: sch}
}

// Docs unions the term's bitmaps across every segment id below the current
// segment counter, translated to absolute document ids.
func (r *Reader) Docs(ctx context.Context, term string) (*roaring.Bitmap, error) {
	result := roaring.New()
	err := r.pool.With(ctx, r.table, func(t store.Table) error {
		current, err := t.Counter(ctx, r.schema.RowSegment, r.schema.FamilySequence, []byte(r.schema.QualifierSegment))
		if err != nil {
			return fmt.Errorf("reading segment counter: %w", err)
		}
		for seg := int64(0); seg < current; seg++ {
			if err := r.addSegment(ctx, t, seg, term, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Reader) addSegment(ctx context.Context, t store.Table, seg int64, term string, into *roaring.Bitmap) error {
	data, err := t.GetCell(ctx, r.schema.SegmentTermRow(seg, term), r.schema.FamilyTermVector, []byte(r.schema.QualifierDocuments))
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rawBase, err := t.GetCell(ctx, r.schema.SegmentRow(seg), r.schema.FamilySequence, []byte(r.schema.QualifierDocBase))
	if err != nil {
		return fmt.Errorf("reading base of segment %d: %w", seg, err)
	}
	base, err := schema.DocID(rawBase)
	if err != nil {
		return err
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("%w: segment %d term %q: %v", apperrors.ErrDecode, seg, term, err)
	}
	it := bm.Iterator()
	for it.HasNext() {
		into.Add(uint32(base + int64(it.Next())))
	}
	return nil
}

// DocFreq counts the flushed documents containing term.
func (r *Reader) DocFreq(ctx context.Context, term string) (int, error) {
	bm, err := r.Docs(ctx, term)
	if err != nil {
		return 0, err
	}
	return int(bm.GetCardinality()), nil
}

// Segments returns how many segment ids have been claimed so far.
func (r *Reader) Segments(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.With(ctx, r.table, func(t store.Table) error {
		last, err := t.Counter(ctx, r.schema.RowSegment, r.schema.FamilySequence, []byte(r.schema.QualifierSegment))
		n = last + 1
		return err
	})
	return n, err
}
