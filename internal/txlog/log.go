// Package txlog buffers the row mutations of an index writer (stored fields
// and positional postings) on the client and applies them as one explicit,
// non-atomic batch on Commit. A Log owns one table handle, the writer's
// segment buffer and its view of the identity map.
//
// Lifecycle: New -> Init or Open -> (AddPosting | StoreField | Commit)* ->
// Close. Mutations not committed before Close are discarded.
package txlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/identity"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/metrics"
)

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// Log is the transaction log of one writer. It is safe for concurrent use,
// but all callers share one pending batch and one segment buffer.
type Log struct {
	mu sync.Mutex

	pool          *store.Pool
	name          string
	schema        schema.Schema
	codec         codec.Codec
	codecSet      bool
	maxTermVector int64
	listener      segment.FlushListener
	metrics       *metrics.Metrics
	logger        *slog.Logger

	state    state
	table    store.Table
	buffer   *segment.Buffer
	identity *identity.Map
	puts     []store.Put
}

// Option configures a Log.
type Option func(*Log)

// WithSchema overrides the default layout.
func WithSchema(s schema.Schema) Option {
	return func(l *Log) { l.schema = s }
}

// WithCodec fixes the posting codec. Init records it in the table; Open
// refuses a table created with another codec. Without this option Open
// adopts the recorded codec.
func WithCodec(c codec.Codec) Option {
	return func(l *Log) {
		l.codec = c
		l.codecSet = true
	}
}

// WithMaxTermVector sets the segment flush threshold.
func WithMaxTermVector(n int64) Option {
	return func(l *Log) { l.maxTermVector = n }
}

// WithFlushListener is told about every segment flush.
func WithFlushListener(fl segment.FlushListener) Option {
	return func(l *Log) { l.listener = fl }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// New returns an unattached log for the named index table.
func New(pool *store.Pool, name string, opts ...Option) *Log {
	l := &Log{
		pool:          pool,
		name:          name,
		schema:        schema.Default(),
		codec:         codec.Varint{},
		maxTermVector: segment.DefaultMaxTermVector,
		logger:        slog.Default().With("component", "txlog", "table", name),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init creates the index table, sets both sequence counters to -1 so the
// first increment yields 0, records the codec and attaches the log. It fails
// with ErrTableExists if the table is already there.
func (l *Log) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkNew(); err != nil {
		return err
	}
	if err := CreateIndexTable(ctx, l.pool.Store(), l.name, l.schema, false); err != nil {
		return err
	}
	t, err := l.pool.Get(ctx, l.name)
	if err != nil {
		return err
	}
	s := l.schema
	if err := t.SetCounter(ctx, s.RowSequence, s.FamilySequence, []byte(s.QualifierSequence), -1); err != nil {
		l.pool.Put(t)
		return fmt.Errorf("initializing document sequence: %w", err)
	}
	if err := t.SetCounter(ctx, s.RowSegment, s.FamilySequence, []byte(s.QualifierSegment), -1); err != nil {
		l.pool.Put(t)
		return fmt.Errorf("initializing segment sequence: %w", err)
	}
	if err := t.Put(ctx, store.NewPut(s.RowMeta, s.FamilySequence, []byte(s.QualifierCodec), []byte(l.codec.Name()))); err != nil {
		l.pool.Put(t)
		return fmt.Errorf("recording codec: %w", err)
	}
	l.logger.Info("index initialized", "codec", l.codec.Name())
	return l.attach(ctx, t)
}

// Open attaches to an index created earlier by Init.
func (l *Log) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkNew(); err != nil {
		return err
	}
	t, err := l.pool.Get(ctx, l.name)
	if err != nil {
		return err
	}
	recorded, err := RecordedCodec(ctx, t, l.schema)
	if err != nil {
		l.pool.Put(t)
		return err
	}
	if l.codecSet && recorded.Name() != l.codec.Name() {
		l.pool.Put(t)
		return fmt.Errorf("%w: table %s uses %q, writer configured %q",
			apperrors.ErrCodecMismatch, l.name, recorded.Name(), l.codec.Name())
	}
	l.codec = recorded
	return l.attach(ctx, t)
}

func (l *Log) attach(ctx context.Context, t store.Table) error {
	opts := []segment.Option{
		segment.WithMaxTermVector(l.maxTermVector),
		segment.WithMetrics(l.metrics),
	}
	if l.listener != nil {
		opts = append(opts, segment.WithFlushListener(l.listener))
	}
	buf, err := segment.NewBuffer(ctx, t, l.schema, opts...)
	if err != nil {
		l.pool.Put(t)
		return err
	}
	l.table = t
	l.buffer = buf
	l.identity = identity.New(l.pool, l.name, l.schema, identity.WithMetrics(l.metrics))
	l.state = stateOpen
	return nil
}

func (l *Log) checkNew() error {
	switch l.state {
	case stateOpen:
		return fmt.Errorf("%w: log for %s already attached", apperrors.ErrInvalidInput, l.name)
	case stateClosed:
		return fmt.Errorf("log for %s: %w", l.name, apperrors.ErrClosed)
	}
	return nil
}

func (l *Log) checkOpen() error {
	switch l.state {
	case stateNew:
		return fmt.Errorf("log for %s: %w", l.name, apperrors.ErrNotInitialized)
	case stateClosed:
		return fmt.Errorf("log for %s: %w", l.name, apperrors.ErrClosed)
	}
	return nil
}

// Name is the index table name.
func (l *Log) Name() string { return l.name }

// Codec is the posting codec in effect.
func (l *Log) Codec() codec.Codec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codec
}

// Schema is the layout in effect.
func (l *Log) Schema() schema.Schema { return l.schema }

// Identity returns the identity map of the index.
func (l *Log) Identity() (*identity.Map, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	return l.identity, nil
}

// AssignDocumentID allocates an id for primaryKey. The bimap rows are written
// immediately, not through the pending batch.
func (l *Log) AssignDocumentID(ctx context.Context, primaryKey []byte) (identity.AssignResult, error) {
	ids, err := l.Identity()
	if err != nil {
		return identity.AssignResult{DocID: -1}, err
	}
	return ids.Assign(ctx, primaryKey)
}

// AddPosting buffers the encoded positions of term in docID and records the
// posting in the segment buffer, which may flush synchronously.
func (l *Log) AddPosting(ctx context.Context, term schema.Term, docID int64, positions []int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return err
	}
	if err := term.Validate(); err != nil {
		return err
	}
	encoded, err := l.codec.Encode(positions)
	if err != nil {
		return fmt.Errorf("encoding positions of %s in %d: %w", term, docID, err)
	}
	l.puts = append(l.puts, store.NewPut(l.schema.TermRow(term), l.schema.FamilyTermVector, schema.DocKey(docID), encoded))
	if _, err := l.buffer.Record(ctx, term.String(), docID); err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidInput) {
			l.puts = l.puts[:len(l.puts)-1]
		}
		return fmt.Errorf("recording %s in segment: %w", term, err)
	}
	return nil
}

// StoreField buffers a stored field value of docID.
func (l *Log) StoreField(docID int64, field string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return err
	}
	if field == "" {
		return fmt.Errorf("%w: empty field name", apperrors.ErrInvalidInput)
	}
	l.puts = append(l.puts, store.NewPut(schema.DocKey(docID), l.schema.FamilyFields, []byte(field), value))
	return nil
}

// Pending is the number of buffered row mutations.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.puts)
}

// Commit sends every pending mutation in one batch and clears the buffer.
// The batch is not atomic. On failure the mutations stay pending, so calling
// Commit again rewrites the rows that did land with identical values.
func (l *Log) Commit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return err
	}
	if len(l.puts) == 0 {
		return nil
	}
	n := len(l.puts)
	if err := l.table.BatchPut(ctx, l.puts); err != nil {
		l.metrics.Commit(n, err)
		return fmt.Errorf("committing %d mutations: %w", n, err)
	}
	l.metrics.Commit(n, nil)
	l.logger.Debug("committed", "mutations", n)
	l.puts = nil
	return nil
}

// Flush forces the current segment out even if it is below the threshold.
func (l *Log) Flush(ctx context.Context) (segment.Flushed, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return segment.Flushed{}, err
	}
	return l.buffer.Flush(ctx)
}

// Close returns the table handle to the pool. Pending mutations and
// unflushed segment postings are dropped. Calling Close again is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == stateClosed {
		return nil
	}
	if l.state == stateOpen {
		if len(l.puts) > 0 || l.buffer.Len() > 0 {
			l.logger.Warn("closing with uncommitted data, discarding",
				"pending_mutations", len(l.puts),
				"unflushed_terms", l.buffer.Len(),
			)
		}
		l.pool.Put(l.table)
	}
	l.puts = nil
	l.table = nil
	l.buffer = nil
	l.state = stateClosed
	return nil
}
