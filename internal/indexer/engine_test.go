package indexer

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/memstore"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	st   *memstore.Store
	pool *store.Pool
	log  *txlog.Log
}

func newFixture(t *testing.T, opts ...txlog.Option) fixture {
	t.Helper()
	st := memstore.New()
	pool := store.NewPool(st, 4)
	t.Cleanup(func() { _ = pool.Close() })
	l := txlog.New(pool, "idx", opts...)
	require.NoError(t, l.Init(context.Background()))
	t.Cleanup(func() { _ = l.Close() })
	return fixture{st: st, pool: pool, log: l}
}

func (f fixture) positions(t *testing.T, term schema.Term) map[int64][]int {
	t.Helper()
	ctx := context.Background()
	r, err := postings.NewReader(ctx, f.pool, "idx", schema.Default(), codec.Varint{})
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Seek(ctx, term))
	out := make(map[int64][]int)
	for r.Next() {
		p, err := r.Positions(ctx)
		require.NoError(t, err)
		out[r.Doc()] = p
	}
	return out
}

func TestIndexDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := NewEngine(f.log, WithIndexedFields("body"))

	res, err := e.IndexDocument(ctx, Document{
		PrimaryKey: "a",
		Fields:     map[string]string{"body": "Runway closed, runway reopened", "code": "JFK"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.DocID)
	assert.Equal(t, 3, res.Terms)
	assert.Equal(t, 4, res.Tokens)
	assert.False(t, res.PartialIdentity)
	assert.Zero(t, f.log.Pending())

	assert.Equal(t, map[int64][]int{0: {0, 2}}, f.positions(t, schema.Term{Field: "body", Text: "runway"}))
	assert.Empty(t, f.positions(t, schema.Term{Field: "code", Text: "jfk"}), "code is stored only")

	tbl, err := f.st.OpenTable(ctx, "idx")
	require.NoError(t, err)
	v, err := tbl.GetCell(ctx, schema.DocKey(0), "documents", []byte("code"))
	require.NoError(t, err)
	assert.Equal(t, []byte("JFK"), v)
}

func TestCommitIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := NewEngine(f.log, WithCommitRetry(3, time.Millisecond))

	var failures atomic.Int32
	f.st.SetFault(func(op string, row []byte) error {
		if op == "put" && bytes.Equal(row, []byte("body/taxiway")) && failures.Add(1) == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	res, err := e.IndexDocument(ctx, Document{PrimaryKey: "a", Fields: map[string]string{"body": "taxiway"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), failures.Load())
	assert.Equal(t, map[int64][]int{res.DocID: {0}}, f.positions(t, schema.Term{Field: "body", Text: "taxiway"}))
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.log)
	before := f.st.RoundTrips()

	res, err := e.IndexDocument(context.Background(), Document{Fields: map[string]string{"body": "x"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, int64(-1), res.DocID)
	assert.Equal(t, before, f.st.RoundTrips())
}

func TestPartialIdentityStillIndexes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := NewEngine(f.log)

	var hit atomic.Bool
	f.st.SetFault(func(op string, row []byte) error {
		if op == "put" && bytes.Equal(row, schema.DocKey(0)) && hit.CompareAndSwap(false, true) {
			return errors.New("timeout")
		}
		return nil
	})
	res, err := e.IndexDocument(ctx, Document{PrimaryKey: "half", Fields: map[string]string{"body": "apron"}})
	require.NoError(t, err)
	assert.True(t, res.PartialIdentity)

	ids, err := f.log.Identity()
	require.NoError(t, err)
	report, err := ids.Reconcile(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, report.MissingReverse)
	pk, err := ids.PrimaryKey(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("half"), pk)
}

func TestIndexBatchCommitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := NewEngine(f.log)

	out, err := e.IndexBatch(ctx, []Document{
		{PrimaryKey: "a", Fields: map[string]string{"body": "gate"}},
		{PrimaryKey: "b", Fields: map[string]string{"body": "gate"}},
		{Fields: map[string]string{"body": "gate"}},
		{PrimaryKey: "d", Fields: map[string]string{"body": "gate"}},
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	require.Len(t, out, 2)
	assert.Len(t, f.positions(t, schema.Term{Field: "body", Text: "gate"}), 2)
}

type fakePublisher struct {
	events []kafka.Event
}

func (p *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestFlushesArePublished(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	f := newFixture(t,
		txlog.WithMaxTermVector(segment.TermCost),
		txlog.WithFlushListener(NewFlushPublisher("idx", pub)),
	)
	e := NewEngine(f.log)

	_, err := e.IndexDocument(ctx, Document{PrimaryKey: "a", Fields: map[string]string{"body": "jet bridge"}})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "idx", pub.events[0].Key)
	ev, ok := pub.events[0].Value.(SegmentFlushedEvent)
	require.True(t, ok)
	assert.Equal(t, int64(0), ev.SegmentID)
	assert.Equal(t, 2, ev.Terms)
	assert.False(t, ev.FlushedAt.IsZero())

	_, err = e.IndexDocument(ctx, Document{PrimaryKey: "b", Fields: map[string]string{"body": "jet"}})
	require.NoError(t, err)
	info, err := e.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.SegmentID)
	assert.Len(t, pub.events, 2)
}
