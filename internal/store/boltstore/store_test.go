package boltstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/storetest"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(path)
	require.NoError(t, err)
	return st
}

func TestConformance(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "index.db"))
	t.Cleanup(func() { _ = st.Close() })
	storetest.Run(t, st)
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	st := openStore(t, path)
	require.NoError(t, st.CreateTable(ctx, "idx", []string{"cf", "seq"}))
	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)
	require.NoError(t, tbl.Put(ctx, store.NewPut([]byte("row"), "cf", []byte("q"), []byte("v"))))
	_, err = tbl.Increment(ctx, []byte("c"), "seq", []byte("n"), 7)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st = openStore(t, path)
	t.Cleanup(func() { _ = st.Close() })
	tbl, err = st.OpenTable(ctx, "idx")
	require.NoError(t, err)

	v, err := tbl.GetCell(ctx, []byte("row"), "cf", []byte("q"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	n, err := tbl.Counter(ctx, []byte("c"), "seq", []byte("n"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	err = tbl.Put(ctx, store.NewPut([]byte("row"), "missing", []byte("q"), nil))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestScanCallbackMayWrite(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, filepath.Join(t.TempDir(), "index.db"))
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.CreateTable(ctx, "idx", []string{"cf", "other"}))
	tbl, err := st.OpenTable(ctx, "idx")
	require.NoError(t, err)

	for _, r := range []string{"a", "b"} {
		require.NoError(t, tbl.Put(ctx, store.NewPut([]byte(r), "cf", []byte("q"), []byte(r))))
	}
	err = tbl.Scan(ctx, "cf", nil, func(row []byte, _ []store.Cell) error {
		return tbl.Put(ctx, store.NewPut(row, "other", []byte("seen"), []byte("1")))
	})
	require.NoError(t, err)

	for _, r := range []string{"a", "b"} {
		v, err := tbl.GetCell(ctx, []byte(r), "other", []byte("seen"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)
	}
}
