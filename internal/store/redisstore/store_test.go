package redisstore

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/storetest"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	st := New(client, "")
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestConformance(t *testing.T) {
	st, _ := newStore(t)
	storetest.Run(t, st)
}

func TestCounterIsDecimalHashField(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t)
	require.NoError(t, st.CreateTable(ctx, "idx", []string{"sequence"}))
	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)

	require.NoError(t, tbl.SetCounter(ctx, []byte("sequenceId"), "sequence", []byte("sequence"), -1))
	v, err := tbl.Increment(ctx, []byte("sequenceId"), "sequence", []byte("sequence"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	assert.Equal(t, "0", mr.HGet("kvx:t:idx:sequenceId", "sequence:sequence"))
}

func TestDropRemovesRows(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t)
	require.NoError(t, st.CreateTable(ctx, "idx", []string{"cf"}))
	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)
	require.NoError(t, tbl.SetCounter(ctx, []byte("r"), "cf", []byte("q"), 3))
	require.True(t, mr.Exists("kvx:t:idx:r"))

	require.NoError(t, st.DropTable(ctx, "idx"))
	assert.False(t, mr.Exists("kvx:t:idx:r"))

	err = st.DropTable(ctx, "idx")
	assert.True(t, errors.Is(err, apperrors.ErrTableNotFound))
}

func TestRejectsUnsafeTableName(t *testing.T) {
	st, _ := newStore(t)
	err := st.CreateTable(context.Background(), "bad:name", nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestUnavailableServerIsStoreError(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t)
	require.NoError(t, st.CreateTable(ctx, "idx", []string{"cf"}))
	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)

	mr.Close()
	_, err = tbl.GetCell(ctx, []byte("r"), "cf", []byte("q"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))

	var se *apperrors.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "idx", se.Table)
	assert.Equal(t, []byte("r"), se.Row)
}

func TestOpenTableLoadsFamiliesFromServer(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t)
	require.NoError(t, st.CreateTable(ctx, "idx", []string{"cf"}))

	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr(), PoolSize: 1})
	require.NoError(t, err)
	other := New(client, "")
	t.Cleanup(func() { _ = other.Close() })

	tbl, err := other.OpenTable(ctx, "idx")
	require.NoError(t, err)
	require.NoError(t, tbl.Put(ctx, store.NewPut([]byte("r"), "cf", []byte("q"), []byte("v"))))

	err = tbl.BatchPut(ctx, []store.Put{
		store.NewPut([]byte("a"), "cf", []byte("q"), []byte("v")),
		store.NewPut([]byte("b"), "postings", []byte("q"), []byte("v")),
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)
	assert.False(t, mr.Exists("kvx:t:idx:a"))
	assert.False(t, mr.Exists("kvx:t:idx:b"))
}
