// Package identity maps application primary keys to dense internal document
// ids and back. Ids come from an atomically incremented counter row, which
// is the only cross-writer ordering guarantee the index relies on.
//
// The forward (key -> id) and reverse (id -> key) rows are written as two
// independent puts. The store offers no multi-row transaction, so a failure
// can leave one direction without the other; Assign reports exactly which
// writes landed and Reconcile finds and repairs the gaps.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/metrics"
)

// MaxDocID is the exclusive upper bound of document ids.
const MaxDocID = math.MaxInt32

// AssignResult describes one allocation. DocID is -1 when no id was
// allocated.
type AssignResult struct {
	DocID          int64
	ForwardWritten bool
	ReverseWritten bool
}

// Partial reports an allocated id whose bimap rows were not both written.
func (r AssignResult) Partial() bool {
	return r.DocID >= 0 && !(r.ForwardWritten && r.ReverseWritten)
}

// Map is the document identity bimap of one index table. It is safe for
// concurrent use.
type Map struct {
	pool    *store.Pool
	table   string
	schema  schema.Schema
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Map.
type Option func(*Map)

// WithMetrics records allocations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(im *Map) { im.metrics = m }
}

// New returns the identity map of table.
func New(pool *store.Pool, table string, sch schema.Schema, opts ...Option) *Map {
	m := &Map{
		pool:   pool,
		table:  table,
		schema: sch,
		logger: slog.Default().With("component", "identity", "table", table),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Assign allocates a new document id for primaryKey and writes both bimap
// rows. It never checks whether primaryKey already has an id: assigning the
// same key twice yields two different ids and the forward row points at the
// newer one.
//
// An error with DocID -1 means nothing was allocated. An error with a valid
// DocID means the id is consumed and result.Partial() tells which rows are
// missing. ErrCapacityExhausted is fatal and must not be retried.
func (m *Map) Assign(ctx context.Context, primaryKey []byte) (AssignResult, error) {
	result := AssignResult{DocID: -1}
	if len(primaryKey) == 0 {
		return result, fmt.Errorf("%w: empty primary key", apperrors.ErrInvalidInput)
	}

	t, err := m.pool.Get(ctx, m.table)
	if err != nil {
		return result, err
	}
	defer m.pool.Put(t)

	id, err := t.Increment(ctx, m.schema.RowSequence, m.schema.FamilySequence, []byte(m.schema.QualifierSequence), 1)
	if err != nil {
		return result, fmt.Errorf("allocating document id: %w", err)
	}
	if id >= MaxDocID {
		m.logger.Error("document id space exhausted", "next_id", id)
		return result, fmt.Errorf("document id %d: %w", id, apperrors.ErrCapacityExhausted)
	}
	if id < 0 {
		return result, fmt.Errorf("%w: document id counter returned %d, index not initialized", apperrors.ErrNotInitialized, id)
	}
	result.DocID = id
	docKey := schema.DocKey(id)

	forwardErr := t.Put(ctx, store.NewPut(primaryKey, m.schema.FamilyDocToInt, []byte(m.schema.QualifierInt), docKey))
	result.ForwardWritten = forwardErr == nil
	reverseErr := t.Put(ctx, store.NewPut(docKey, m.schema.FamilyIntToDoc, []byte(m.schema.QualifierDocument), primaryKey))
	result.ReverseWritten = reverseErr == nil

	m.metrics.IDAssigned(result.Partial())
	if result.Partial() {
		m.logger.Warn("identity map partially written",
			"doc_id", id,
			"primary_key", string(primaryKey),
			"forward_written", result.ForwardWritten,
			"reverse_written", result.ReverseWritten,
		)
		var errs []error
		if forwardErr != nil {
			errs = append(errs, fmt.Errorf("writing forward row: %w", forwardErr))
		}
		if reverseErr != nil {
			errs = append(errs, fmt.Errorf("writing reverse row: %w", reverseErr))
		}
		return result, apperrors.Join(errs...)
	}
	m.logger.Debug("document id assigned", "doc_id", id, "primary_key", string(primaryKey))
	return result, nil
}

// Lookup reads the forward row of primaryKey with the caller's context.
func (m *Map) Lookup(ctx context.Context, primaryKey []byte) (int64, error) {
	id := int64(-1)
	err := m.pool.With(ctx, m.table, func(t store.Table) error {
		raw, err := t.GetCell(ctx, primaryKey, m.schema.FamilyDocToInt, []byte(m.schema.QualifierInt))
		if err != nil {
			return err
		}
		id, err = schema.DocID(raw)
		return err
	})
	if err != nil {
		return -1, fmt.Errorf("looking up primary key %q: %w", primaryKey, err)
	}
	return id, nil
}

// PrimaryKey reads the reverse row of docID.
func (m *Map) PrimaryKey(ctx context.Context, docID int64) ([]byte, error) {
	var pk []byte
	err := m.pool.With(ctx, m.table, func(t store.Table) error {
		var err error
		pk, err = t.GetCell(ctx, schema.DocKey(docID), m.schema.FamilyIntToDoc, []byte(m.schema.QualifierDocument))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolving document %d: %w", docID, err)
	}
	return pk, nil
}

// Count returns how many ids have been allocated so far.
func (m *Map) Count(ctx context.Context) (int64, error) {
	var n int64
	err := m.pool.With(ctx, m.table, func(t store.Table) error {
		last, err := t.Counter(ctx, m.schema.RowSequence, m.schema.FamilySequence, []byte(m.schema.QualifierSequence))
		n = last + 1
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reading document id counter: %w", err)
	}
	return n, nil
}
