package pgstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/postgres"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS kvx_tables")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	st, err := New(context.Background(), &postgres.Client{DB: db})
	require.NoError(t, err)
	return st, mock
}

func openMockTable(t *testing.T, st *Store, mock sqlmock.Sqlmock) store.Table {
	t.Helper()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT families FROM kvx_tables WHERE name = $1")).
		WithArgs("idx").
		WillReturnRows(sqlmock.NewRows([]string{"families"}).AddRow("cf,sequence"))
	tbl, err := st.OpenTable(context.Background(), "idx")
	require.NoError(t, err)
	return tbl
}

func TestCreateTable(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kvx_tables (name, families)")).
		WithArgs("idx", "cf,sequence").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "kvx_idx" (`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "kvx_idx_counters" (`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, st.CreateTable(context.Background(), "idx", []string{"cf", "sequence"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExistingTable(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kvx_tables (name, families)")).
		WithArgs("idx", "cf").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := st.CreateTable(context.Background(), "idx", []string{"cf"})
	assert.True(t, errors.Is(err, apperrors.ErrTableExists), "got %v", err)
	assert.False(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectsUnsafeTableName(t *testing.T) {
	st, mock := newMockStore(t)
	err := st.CreateTable(context.Background(), `idx"; DROP TABLE x; --`, nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenMissingTable(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT families FROM kvx_tables")).
		WithArgs("idx").
		WillReturnRows(sqlmock.NewRows([]string{"families"}))

	_, err := st.OpenTable(context.Background(), "idx")
	assert.True(t, errors.Is(err, apperrors.ErrTableNotFound), "got %v", err)
}

func TestGetCell(t *testing.T) {
	ctx := context.Background()
	st, mock := newMockStore(t)
	tbl := openMockTable(t, st, mock)

	q := regexp.QuoteMeta(`SELECT value FROM "kvx_idx" WHERE row_key = $1 AND family = $2 AND qualifier = $3`)
	mock.ExpectQuery(q).
		WithArgs([]byte("pk-1"), "cf", []byte("Int")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte{0, 0, 0, 0, 0, 0, 0, 7}))
	mock.ExpectQuery(q).
		WithArgs([]byte("pk-2"), "cf", []byte("Int")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery(q).
		WithArgs([]byte("pk-3"), "cf", []byte("Int")).
		WillReturnError(errors.New("connection reset by peer"))

	v, err := tbl.GetCell(ctx, []byte("pk-1"), "cf", []byte("Int"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 7}, v)

	_, err = tbl.GetCell(ctx, []byte("pk-2"), "cf", []byte("Int"))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)

	_, err = tbl.GetCell(ctx, []byte("pk-3"), "cf", []byte("Int"))
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable), "got %v", err)
	var se *apperrors.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []byte("pk-3"), se.Row)

	_, err = tbl.GetCell(ctx, []byte("pk-1"), "unknown", []byte("Int"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementUsesUpsertReturning(t *testing.T) {
	st, mock := newMockStore(t)
	tbl := openMockTable(t, st, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "kvx_idx_counters" AS c`)).
		WithArgs([]byte("sequenceId"), "sequence", []byte("sequence"), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(0)))

	got, err := tbl.Increment(context.Background(), []byte("sequenceId"), "sequence", []byte("sequence"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchPutRunsInOneTransaction(t *testing.T) {
	st, mock := newMockStore(t)
	tbl := openMockTable(t, st, mock)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "kvx_idx" (row_key, family, qualifier, value)`))
	prep.ExpectExec().WithArgs([]byte("a"), "cf", []byte("q"), []byte("1")).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs([]byte("b"), "cf", []byte("q"), []byte("2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tbl.BatchPut(context.Background(), []store.Put{
		store.NewPut([]byte("a"), "cf", []byte("q"), []byte("1")),
		store.NewPut([]byte("b"), "cf", []byte("q"), []byte("2")),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanGroupsCellsByRow(t *testing.T) {
	st, mock := newMockStore(t)
	tbl := openMockTable(t, st, mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT row_key, qualifier, value FROM "kvx_idx" WHERE family = $1 AND row_key >= $2 AND row_key < $3 ORDER BY row_key, qualifier`)).
		WithArgs("cf", []byte("b/"), []byte("b0")).
		WillReturnRows(sqlmock.NewRows([]string{"row_key", "qualifier", "value"}).
			AddRow([]byte("b/1"), []byte("x"), []byte("1")).
			AddRow([]byte("b/1"), []byte("y"), []byte("2")).
			AddRow([]byte("b/2"), []byte("x"), []byte("3")))

	got := map[string]int{}
	var order []string
	err := tbl.Scan(context.Background(), "cf", []byte("b/"), func(row []byte, cells []store.Cell) error {
		order = append(order, string(row))
		got[string(row)] = len(cells)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1", "b/2"}, order)
	assert.Equal(t, map[string]int{"b/1": 2, "b/2": 1}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("b0"), prefixEnd([]byte("b/")))
	assert.Equal(t, []byte{0x02}, prefixEnd([]byte{0x01, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
	assert.Nil(t, prefixEnd(nil))
}
