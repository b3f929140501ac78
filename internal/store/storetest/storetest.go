// Package storetest holds the conformance suite every store.Store backend
// must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Families are provisioned on every table the suite creates.
var Families = []string{"cf", "seq", "other"}

// Run exercises st. Each sub-test creates its own table.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	open := func(t *testing.T, name string) store.Table {
		t.Helper()
		require.NoError(t, st.CreateTable(ctx, name, Families))
		tbl, err := st.OpenTable(ctx, name)
		require.NoError(t, err)
		t.Cleanup(func() { _ = tbl.Close() })
		return tbl
	}

	t.Run("TableLifecycle", func(t *testing.T) {
		exists, err := st.TableExists(ctx, "lifecycle")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, st.CreateTable(ctx, "lifecycle", Families))
		exists, err = st.TableExists(ctx, "lifecycle")
		require.NoError(t, err)
		assert.True(t, exists)

		err = st.CreateTable(ctx, "lifecycle", Families)
		assert.True(t, errors.Is(err, apperrors.ErrTableExists), "got %v", err)

		require.NoError(t, st.DropTable(ctx, "lifecycle"))
		exists, err = st.TableExists(ctx, "lifecycle")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = st.OpenTable(ctx, "lifecycle")
		assert.True(t, errors.Is(err, apperrors.ErrTableNotFound), "got %v", err)
	})

	t.Run("PutGet", func(t *testing.T) {
		tbl := open(t, "putget")
		row := []byte{0, 0, 0, 1}
		require.NoError(t, tbl.Put(ctx, store.Put{Row: row, Cells: []store.Cell{
			{Family: "cf", Qualifier: []byte("b"), Value: []byte("2")},
			{Family: "cf", Qualifier: []byte("a"), Value: []byte("1")},
			{Family: "other", Qualifier: []byte("x"), Value: []byte("9")},
		}}))

		v, err := tbl.GetCell(ctx, row, "cf", []byte("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)

		_, err = tbl.GetCell(ctx, row, "cf", []byte("missing"))
		assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)

		cells, err := tbl.GetFamily(ctx, row, "cf")
		require.NoError(t, err)
		require.Len(t, cells, 2)
		assert.Equal(t, []byte("a"), cells[0].Qualifier)
		assert.Equal(t, []byte("b"), cells[1].Qualifier)

		cells, err = tbl.GetFamily(ctx, []byte("absent"), "cf")
		require.NoError(t, err)
		assert.Empty(t, cells)

		require.NoError(t, tbl.Put(ctx, store.NewPut(row, "cf", []byte("a"), []byte("overwritten"))))
		v, err = tbl.GetCell(ctx, row, "cf", []byte("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte("overwritten"), v)
	})

	t.Run("BatchPut", func(t *testing.T) {
		tbl := open(t, "batch")
		puts := make([]store.Put, 0, 20)
		for i := 0; i < 20; i++ {
			puts = append(puts, store.NewPut([]byte(fmt.Sprintf("row-%02d", i)), "cf", []byte("q"), []byte{byte(i)}))
		}
		require.NoError(t, tbl.BatchPut(ctx, puts))
		for i := 0; i < 20; i++ {
			v, err := tbl.GetCell(ctx, []byte(fmt.Sprintf("row-%02d", i)), "cf", []byte("q"))
			require.NoError(t, err)
			assert.Equal(t, []byte{byte(i)}, v)
		}
	})

	t.Run("Counters", func(t *testing.T) {
		tbl := open(t, "counters")
		row, q := []byte("sequenceId"), []byte("sequence")

		_, err := tbl.Counter(ctx, row, "seq", q)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)

		require.NoError(t, tbl.SetCounter(ctx, row, "seq", q, -1))
		got, err := tbl.Increment(ctx, row, "seq", q, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got)

		got, err = tbl.Increment(ctx, row, "seq", q, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got)

		got, err = tbl.Counter(ctx, row, "seq", q)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got)
	})

	t.Run("ConcurrentIncrement", func(t *testing.T) {
		tbl := open(t, "concurrent")
		row, q := []byte("c"), []byte("n")
		require.NoError(t, tbl.SetCounter(ctx, row, "seq", q, -1))

		const workers, per = 8, 25
		var mu sync.Mutex
		seen := make(map[int64]bool, workers*per)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < per; i++ {
					v, err := tbl.Increment(ctx, row, "seq", q, 1)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					seen[v] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Len(t, seen, workers*per)
		for i := int64(0); i < workers*per; i++ {
			assert.True(t, seen[i], "missing %d", i)
		}
	})

	t.Run("Scan", func(t *testing.T) {
		tbl := open(t, "scan")
		for _, r := range []string{"b/2", "a/1", "b/1", "c/1"} {
			require.NoError(t, tbl.Put(ctx, store.NewPut([]byte(r), "cf", []byte("q"), []byte(r))))
		}
		require.NoError(t, tbl.Put(ctx, store.NewPut([]byte("b/3"), "other", []byte("q"), []byte("x"))))

		var rows []string
		err := tbl.Scan(ctx, "cf", []byte("b/"), func(row []byte, cells []store.Cell) error {
			rows = append(rows, string(row))
			require.Len(t, cells, 1)
			assert.Equal(t, "cf", cells[0].Family)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b/1", "b/2"}, rows)

		stop := errors.New("stop")
		count := 0
		err = tbl.Scan(ctx, "cf", nil, func([]byte, []store.Cell) error {
			count++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, count)
	})

	t.Run("UnknownFamily", func(t *testing.T) {
		tbl := open(t, "unknownfamily")
		row := []byte("r")
		err := tbl.Put(ctx, store.Put{Row: row, Cells: []store.Cell{
			{Family: "cf", Qualifier: []byte("a"), Value: []byte("1")},
			{Family: "bogus", Qualifier: []byte("b"), Value: []byte("2")},
		}})
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)
		_, err = tbl.GetCell(ctx, row, "cf", []byte("a"))
		assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)

		err = tbl.BatchPut(ctx, []store.Put{store.NewPut([]byte("s"), "bogus", []byte("q"), []byte("v"))})
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)

		_, err = tbl.GetCell(ctx, row, "bogus", []byte("a"))
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)
		_, err = tbl.Increment(ctx, row, "bogus", []byte("n"), 1)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)
		err = tbl.Scan(ctx, "bogus", nil, func([]byte, []store.Cell) error { return nil })
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), "got %v", err)
	})

	t.Run("ClosedHandle", func(t *testing.T) {
		tbl := open(t, "closed")
		require.NoError(t, tbl.Close())
		_, err := tbl.GetCell(ctx, []byte("r"), "cf", []byte("q"))
		assert.True(t, errors.Is(err, apperrors.ErrClosed), "got %v", err)
		err = tbl.Put(ctx, store.NewPut([]byte("r"), "cf", []byte("q"), nil))
		assert.True(t, errors.Is(err, apperrors.ErrClosed), "got %v", err)
	})
}
