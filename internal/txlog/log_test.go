package txlog

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/memstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T) (*memstore.Store, *store.Pool) {
	t.Helper()
	st := memstore.New()
	pool := store.NewPool(st, 4)
	t.Cleanup(func() { _ = pool.Close() })
	return st, pool
}

func initLog(t *testing.T, pool *store.Pool, opts ...Option) *Log {
	t.Helper()
	l := New(pool, "idx", opts...)
	require.NoError(t, l.Init(context.Background()))
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestInitSetsCountersAndCodec(t *testing.T) {
	ctx := context.Background()
	st, pool := newPool(t)
	initLog(t, pool, WithCodec(codec.ASCII{}))

	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)
	sch := schema.Default()

	seq, err := tbl.Counter(ctx, sch.RowSequence, sch.FamilySequence, []byte(sch.QualifierSequence))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), seq)

	seg, err := tbl.Counter(ctx, sch.RowSegment, sch.FamilySequence, []byte(sch.QualifierSegment))
	require.NoError(t, err)
	assert.Equal(t, int64(0), seg, "the log's buffer claimed segment 0")

	name, err := tbl.GetCell(ctx, sch.RowMeta, sch.FamilySequence, []byte(sch.QualifierCodec))
	require.NoError(t, err)
	assert.Equal(t, "ascii", string(name))
}

func TestInitExistingTableFails(t *testing.T) {
	_, pool := newPool(t)
	initLog(t, pool)

	err := New(pool, "idx").Init(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrTableExists), "got %v", err)
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()
	_, pool := newPool(t)
	l := New(pool, "idx")

	err := l.AddPosting(ctx, schema.Term{Field: "f", Text: "x"}, 0, []int{0})
	assert.True(t, errors.Is(err, apperrors.ErrNotInitialized))
	err = l.Commit(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrNotInitialized))

	require.NoError(t, l.Init(ctx))
	assert.Error(t, l.Init(ctx), "second attach")

	require.NoError(t, l.Commit(ctx), "empty commit")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "close is idempotent")

	err = l.StoreField(0, "name", []byte("v"))
	assert.True(t, errors.Is(err, apperrors.ErrClosed))
	_, err = l.AssignDocumentID(ctx, []byte("a"))
	assert.True(t, errors.Is(err, apperrors.ErrClosed))
	assert.True(t, errors.Is(l.Open(ctx), apperrors.ErrClosed))
}

func TestMutationsInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	st, pool := newPool(t)
	l := initLog(t, pool)
	sch := schema.Default()

	res, err := l.AssignDocumentID(ctx, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, l.StoreField(res.DocID, "name", []byte("alpha")))
	require.NoError(t, l.AddPosting(ctx, schema.Term{Field: "f", Text: "token"}, res.DocID, []int{0, 4}))
	assert.Equal(t, 2, l.Pending())

	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)
	_, err = tbl.GetCell(ctx, schema.DocKey(res.DocID), sch.FamilyFields, []byte("name"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, l.Commit(ctx))
	assert.Zero(t, l.Pending())

	v, err := tbl.GetCell(ctx, schema.DocKey(res.DocID), sch.FamilyFields, []byte("name"))
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), v)

	raw, err := tbl.GetCell(ctx, []byte("f/token"), sch.FamilyTermVector, schema.DocKey(res.DocID))
	require.NoError(t, err)
	positions, err := codec.Varint{}.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4}, positions)
}

func TestFailedCommitKeepsMutations(t *testing.T) {
	ctx := context.Background()
	st, pool := newPool(t)
	l := initLog(t, pool)

	require.NoError(t, l.StoreField(0, "a", []byte("1")))
	require.NoError(t, l.StoreField(1, "a", []byte("2")))

	st.SetFault(func(op string, row []byte) error {
		if op == "put" && string(row) == string(schema.DocKey(1)) {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	err := l.Commit(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.Retryable(err))
	assert.Equal(t, 2, l.Pending())

	st.SetFault(nil)
	require.NoError(t, l.Commit(ctx))
	assert.Zero(t, l.Pending())
}

func TestCloseDiscardsPending(t *testing.T) {
	ctx := context.Background()
	st, pool := newPool(t)
	l := New(pool, "idx")
	require.NoError(t, l.Init(ctx))
	require.NoError(t, l.StoreField(0, "name", []byte("lost")))
	require.NoError(t, l.Close())

	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)
	_, err = tbl.GetCell(ctx, schema.DocKey(0), schema.Default().FamilyFields, []byte("name"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestOpenChecksCodec(t *testing.T) {
	ctx := context.Background()
	_, pool := newPool(t)
	first := New(pool, "idx", WithCodec(codec.Zstd{}))
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Close())

	mismatched := New(pool, "idx", WithCodec(codec.Varint{}))
	err := mismatched.Open(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrCodecMismatch), "got %v", err)

	adopted := New(pool, "idx")
	require.NoError(t, adopted.Open(ctx))
	t.Cleanup(func() { _ = adopted.Close() })
	assert.Equal(t, "zstd", adopted.Codec().Name())
}

func TestOpenMissingTable(t *testing.T) {
	_, pool := newPool(t)
	err := New(pool, "absent").Open(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrTableNotFound), "got %v", err)
}

type flushes struct{ got []segment.Flushed }

func (f *flushes) SegmentFlushed(_ context.Context, s segment.Flushed) { f.got = append(f.got, s) }

func TestPostingsFeedSegmentBuffer(t *testing.T) {
	ctx := context.Background()
	_, pool := newPool(t)
	rec := &flushes{}
	l := initLog(t, pool, WithMaxTermVector(segment.TermCost), WithFlushListener(rec))

	require.NoError(t, l.AddPosting(ctx, schema.Term{Field: "f", Text: "a"}, 0, []int{0}))
	assert.Empty(t, rec.got)
	require.NoError(t, l.AddPosting(ctx, schema.Term{Field: "f", Text: "b"}, 0, []int{1}))
	require.Len(t, rec.got, 1)
	assert.Equal(t, 2, rec.got[0].Terms)

	require.NoError(t, l.AddPosting(ctx, schema.Term{Field: "f", Text: "a"}, 1, []int{0}))
	info, err := l.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.SegmentID)
	assert.Len(t, rec.got, 2)
}

func TestCreateIndexTableForce(t *testing.T) {
	ctx := context.Background()
	st, _ := newPool(t)
	sch := schema.Default()

	require.NoError(t, CreateIndexTable(ctx, st, "idx", sch, false))
	err := CreateIndexTable(ctx, st, "idx", sch, false)
	assert.True(t, errors.Is(err, apperrors.ErrTableExists))
	require.NoError(t, CreateIndexTable(ctx, st, "idx", sch, true))

	require.NoError(t, DropIndexTable(ctx, st, "idx"))
	ok, err := st.TableExists(ctx, "idx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordedCodec(t *testing.T) {
	ctx := context.Background()
	st, pool := newPool(t)
	initLog(t, pool, WithCodec(codec.LZ4{}))

	err := pool.With(ctx, "idx", func(tbl store.Table) error {
		c, err := RecordedCodec(ctx, tbl, schema.Default())
		require.NoError(t, err)
		assert.Equal(t, "lz4", c.Name())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, st.CreateTable(ctx, "bare", schema.Default().Families()))
	err = pool.With(ctx, "bare", func(tbl store.Table) error {
		_, err := RecordedCodec(ctx, tbl, schema.Default())
		return err
	})
	assert.True(t, errors.Is(err, apperrors.ErrNotInitialized), "got %v", err)
}

func TestAddPostingOutOfOrderKeepsEveryPut(t *testing.T) {
	ctx := context.Background()
	_, pool := newPool(t)
	rec := &flushes{}
	l := initLog(t, pool, WithFlushListener(rec))
	term := schema.Term{Field: "f", Text: "token"}

	for _, id := range []int64{300, 2, 9} {
		require.NoError(t, l.AddPosting(ctx, term, id, []int{0}))
	}
	assert.Equal(t, 3, l.Pending())
	require.NoError(t, l.Commit(ctx))

	info, err := l.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.DocBase)
	assert.Equal(t, 3, info.Postings)

	docs, err := segment.NewReader(pool, "idx", schema.Default()).Docs(ctx, term.String())
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 9, 300}, docs.ToArray())
}

func TestAddPostingRejectsReservedField(t *testing.T) {
	_, pool := newPool(t)
	l := initLog(t, pool)
	err := l.AddPosting(context.Background(), schema.Term{Field: "s0", Text: "body/runway"}, 0, []int{0})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Zero(t, l.Pending())
}
