// Package pgstore keeps an index in PostgreSQL. Each index table becomes two
// SQL tables: one holding (row_key, family, qualifier) -> value cells and one
// holding BIGINT counters. A catalog table records the column families of
// every index. BYTEA compares bytewise, so ORDER BY row_key, qualifier
// yields the native order of a sorted key-value store.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/postgres"
	"github.com/lib/pq"
)

const catalogTable = "kvx_tables"

var validName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Store is the PostgreSQL backend.
type Store struct {
	client *postgres.Client
}

var _ store.Store = (*Store)(nil)

// New ensures the catalog table exists and returns the backend.
func New(ctx context.Context, client *postgres.Client) (*Store, error) {
	_, err := client.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+catalogTable+` (
		name     TEXT PRIMARY KEY,
		families TEXT NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("creating catalog table: %w", err)
	}
	return &Store{client: client}, nil
}

func cellsTable(name string) string { return pq.QuoteIdentifier("kvx_" + name) }

func countersTable(name string) string { return pq.QuoteIdentifier("kvx_" + name + "_counters") }

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: table name %q", apperrors.ErrInvalidInput, name)
	}
	return nil
}

func (s *Store) CreateTable(ctx context.Context, name string, families []string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO `+catalogTable+` (name, families) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			name, strings.Join(families, ","))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: %s", apperrors.ErrTableExists, name)
		}
		if _, err := tx.ExecContext(ctx, `CREATE TABLE `+cellsTable(name)+` (
			row_key   BYTEA NOT NULL,
			family    TEXT  NOT NULL,
			qualifier BYTEA NOT NULL,
			value     BYTEA NOT NULL,
			PRIMARY KEY (row_key, family, qualifier)
		)`); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `CREATE TABLE `+countersTable(name)+` (
			row_key   BYTEA  NOT NULL,
			family    TEXT   NOT NULL,
			qualifier BYTEA  NOT NULL,
			value     BIGINT NOT NULL,
			PRIMARY KEY (row_key, family, qualifier)
		)`)
		return err
	})
	if apperrors.Is(err, apperrors.ErrTableExists) {
		return err
	}
	return apperrors.Store("create", name, nil, err)
}

func (s *Store) DropTable(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+catalogTable+` WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
		}
		_, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+cellsTable(name)+`, `+countersTable(name))
		return err
	})
	return apperrors.Store("drop", name, nil, err)
}

func (s *Store) families(ctx context.Context, name string) ([]string, error) {
	var joined string
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT families FROM `+catalogTable+` WHERE name = $1`, name).Scan(&joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}
	if err != nil {
		return nil, apperrors.Store("describe", name, nil, err)
	}
	if joined == "" {
		return nil, nil
	}
	return strings.Split(joined, ","), nil
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	_, err := s.families(ctx, name)
	if apperrors.Is(err, apperrors.ErrTableNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) OpenTable(ctx context.Context, name string) (store.Table, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	families, err := s.families(ctx, name)
	if err != nil {
		return nil, err
	}
	fams := make(map[string]struct{}, len(families))
	for _, f := range families {
		fams[f] = struct{}{}
	}
	return &table{
		client:   s.client,
		name:     name,
		cells:    cellsTable(name),
		counters: countersTable(name),
		families: fams,
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type table struct {
	client   *postgres.Client
	name     string
	cells    string
	counters string
	families map[string]struct{}
	closed   atomic.Bool
}

func (t *table) Name() string { return t.name }

func (t *table) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *table) check(families ...string) error {
	if t.closed.Load() {
		return fmt.Errorf("table %s: %w", t.name, apperrors.ErrClosed)
	}
	for _, f := range families {
		if _, ok := t.families[f]; !ok {
			return fmt.Errorf("%w: no such column family %q", apperrors.ErrInvalidInput, f)
		}
	}
	return nil
}

func (t *table) GetCell(ctx context.Context, row []byte, family string, qualifier []byte) ([]byte, error) {
	if err := t.check(family); err != nil {
		return nil, err
	}
	var value []byte
	err := t.client.DB.QueryRowContext(ctx,
		`SELECT value FROM `+t.cells+` WHERE row_key = $1 AND family = $2 AND qualifier = $3`,
		row, family, qualifier).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Store("get", t.name, row, err)
	}
	return value, nil
}

func (t *table) GetFamily(ctx context.Context, row []byte, family string) ([]store.Cell, error) {
	if err := t.check(family); err != nil {
		return nil, err
	}
	rows, err := t.client.DB.QueryContext(ctx,
		`SELECT qualifier, value FROM `+t.cells+` WHERE row_key = $1 AND family = $2 ORDER BY qualifier`,
		row, family)
	if err != nil {
		return nil, apperrors.Store("get", t.name, row, err)
	}
	defer rows.Close()

	cells := []store.Cell{}
	for rows.Next() {
		c := store.Cell{Family: family}
		if err := rows.Scan(&c.Qualifier, &c.Value); err != nil {
			return nil, apperrors.Store("get", t.name, row, err)
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("get", t.name, row, err)
	}
	return cells, nil
}

func (t *table) upsert() string {
	return `INSERT INTO ` + t.cells + ` (row_key, family, qualifier, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT (row_key, family, qualifier) DO UPDATE SET value = EXCLUDED.value`
}

func (t *table) Put(ctx context.Context, p store.Put) error {
	return t.BatchPut(ctx, []store.Put{p})
}

// BatchPut sends every cell through one prepared upsert inside a single
// transaction.
func (t *table) BatchPut(ctx context.Context, puts []store.Put) error {
	var fams []string
	for _, p := range puts {
		for _, c := range p.Cells {
			fams = append(fams, c.Family)
		}
	}
	if err := t.check(fams...); err != nil {
		return err
	}
	if len(fams) == 0 {
		return nil
	}
	var row []byte
	if len(puts) == 1 {
		row = puts[0].Row
	}
	err := t.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, t.upsert())
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range puts {
			for _, c := range p.Cells {
				value := c.Value
				if value == nil {
					value = []byte{}
				}
				if _, err := stmt.ExecContext(ctx, p.Row, c.Family, c.Qualifier, value); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return apperrors.Store("put", t.name, row, err)
}

func (t *table) Increment(ctx context.Context, row []byte, family string, qualifier []byte, delta int64) (int64, error) {
	if err := t.check(family); err != nil {
		return 0, err
	}
	var next int64
	err := t.client.DB.QueryRowContext(ctx,
		`INSERT INTO `+t.counters+` AS c (row_key, family, qualifier, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT (row_key, family, qualifier) DO UPDATE SET value = c.value + EXCLUDED.value
		RETURNING value`,
		row, family, qualifier, delta).Scan(&next)
	if err != nil {
		return 0, apperrors.Store("increment", t.name, row, err)
	}
	return next, nil
}

func (t *table) SetCounter(ctx context.Context, row []byte, family string, qualifier []byte, value int64) error {
	if err := t.check(family); err != nil {
		return err
	}
	_, err := t.client.DB.ExecContext(ctx,
		`INSERT INTO `+t.counters+` (row_key, family, qualifier, value) VALUES ($1, $2, $3, $4)
		ON CONFLICT (row_key, family, qualifier) DO UPDATE SET value = EXCLUDED.value`,
		row, family, qualifier, value)
	return apperrors.Store("put", t.name, row, err)
}

func (t *table) Counter(ctx context.Context, row []byte, family string, qualifier []byte) (int64, error) {
	if err := t.check(family); err != nil {
		return 0, err
	}
	var value int64
	err := t.client.DB.QueryRowContext(ctx,
		`SELECT value FROM `+t.counters+` WHERE row_key = $1 AND family = $2 AND qualifier = $3`,
		row, family, qualifier).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.ErrNotFound
	}
	if err != nil {
		return 0, apperrors.Store("get", t.name, row, err)
	}
	return value, nil
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such bound exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (t *table) Scan(ctx context.Context, family string, prefix []byte, fn func(row []byte, cells []store.Cell) error) error {
	if err := t.check(family); err != nil {
		return err
	}
	query := `SELECT row_key, qualifier, value FROM ` + t.cells + ` WHERE family = $1 AND row_key >= $2`
	args := []any{family, append([]byte{}, prefix...)}
	if end := prefixEnd(prefix); end != nil {
		query += ` AND row_key < $3`
		args = append(args, end)
	}
	query += ` ORDER BY row_key, qualifier`

	rows, err := t.client.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return apperrors.Store("scan", t.name, prefix, err)
	}
	defer rows.Close()

	var current []byte
	var cells []store.Cell
	for rows.Next() {
		var rowKey []byte
		c := store.Cell{Family: family}
		if err := rows.Scan(&rowKey, &c.Qualifier, &c.Value); err != nil {
			return apperrors.Store("scan", t.name, prefix, err)
		}
		if current != nil && string(rowKey) != string(current) {
			if err := fn(current, cells); err != nil {
				return err
			}
			cells = nil
		}
		current = rowKey
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return apperrors.Store("scan", t.name, prefix, err)
	}
	if current != nil {
		return fn(current, cells)
	}
	return nil
}
