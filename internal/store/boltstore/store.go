// Package boltstore keeps an index in a local bbolt file. Every table is a
// top-level bucket, every row a nested bucket, every column family a bucket
// inside the row holding qualifier -> value pairs. bbolt keys are byte
// ordered, so rows and qualifiers come back in the same order a distributed
// sorted store would return them.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"go.etcd.io/bbolt"
)

var bucketSchema = []byte("__schema")

// Store is the bbolt backend.
type Store struct {
	db *bbolt.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSchema)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func tableBucket(name string) []byte { return []byte("t:" + name) }

func (s *Store) CreateTable(_ context.Context, name string, families []string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(tableBucket(name)) != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrTableExists, name)
		}
		if _, err := tx.CreateBucket(tableBucket(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketSchema).Put([]byte(name), []byte(strings.Join(families, ",")))
	})
	if apperrors.Is(err, apperrors.ErrTableExists) {
		return err
	}
	return apperrors.Store("create", name, nil, err)
}

func (s *Store) DropTable(_ context.Context, name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(tableBucket(name)) == nil {
			return fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
		}
		if err := tx.DeleteBucket(tableBucket(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketSchema).Delete([]byte(name))
	})
	return apperrors.Store("drop", name, nil, err)
}

func (s *Store) TableExists(_ context.Context, name string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(tableBucket(name)) != nil
		return nil
	})
	return ok, apperrors.Store("describe", name, nil, err)
}

func (s *Store) OpenTable(ctx context.Context, name string) (store.Table, error) {
	var families []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(tableBucket(name)) == nil {
			return fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
		}
		if v := tx.Bucket(bucketSchema).Get([]byte(name)); len(v) > 0 {
			families = strings.Split(string(v), ",")
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Store("open", name, nil, err)
	}
	fams := make(map[string]struct{}, len(families))
	for _, f := range families {
		fams[f] = struct{}{}
	}
	return &table{db: s.db, name: name, bucket: tableBucket(name), families: fams}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type table struct {
	db       *bbolt.DB
	name     string
	bucket   []byte
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

func (t *table) root(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	b := tx.Bucket(t.bucket)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, t.name)
	}
	return b, nil
}

func familyBucket(root *bbolt.Bucket, row []byte, family string) *bbolt.Bucket {
	r := root.Bucket(row)
	if r == nil {
		return nil
	}
	return r.Bucket([]byte(family))
}

func (t *table) GetCell(_ context.Context, row []byte, family string, qualifier []byte) ([]byte, error) {
	if err := t.check(family); err != nil {
		return nil, err
	}
	var value []byte
	err := t.db.View(func(tx *bbolt.Tx) error {
		root, err := t.root(tx)
		if err != nil {
			return err
		}
		fb := familyBucket(root, row, family)
		if fb == nil {
			return apperrors.ErrNotFound
		}
		v := fb.Get(qualifier)
		if v == nil {
			return apperrors.ErrNotFound
		}
		value = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, apperrors.Store("get", t.name, row, err)
	}
	return value, nil
}

func readFamily(fb *bbolt.Bucket, family string) []store.Cell {
	if fb == nil {
		return []store.Cell{}
	}
	var cells []store.Cell
	_ = fb.ForEach(func(k, v []byte) error {
		cells = append(cells, store.Cell{Family: family, Qualifier: bytes.Clone(k), Value: bytes.Clone(v)})
		return nil
	})
	return cells
}

func (t *table) GetFamily(_ context.Context, row []byte, family string) ([]store.Cell, error) {
	if err := t.check(family); err != nil {
		return nil, err
	}
	var cells []store.Cell
	err := t.db.View(func(tx *bbolt.Tx) error {
		root, err := t.root(tx)
		if err != nil {
			return err
		}
		cells = readFamily(familyBucket(root, row, family), family)
		return nil
	})
	if err != nil {
		return nil, apperrors.Store("get", t.name, row, err)
	}
	return cells, nil
}

func putCells(root *bbolt.Bucket, p store.Put) error {
	r, err := root.CreateBucketIfNotExists(p.Row)
	if err != nil {
		return err
	}
	for _, c := range p.Cells {
		fb, err := r.CreateBucketIfNotExists([]byte(c.Family))
		if err != nil {
			return err
		}
		if err := fb.Put(c.Qualifier, c.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) cellFamilies(puts []store.Put) []string {
	var fams []string
	for _, p := range puts {
		for _, c := range p.Cells {
			fams = append(fams, c.Family)
		}
	}
	return fams
}

func (t *table) Put(ctx context.Context, p store.Put) error {
	return t.BatchPut(ctx, []store.Put{p})
}

// BatchPut writes all puts in a single bbolt transaction. That is stronger
// than the store contract requires; callers must not rely on it.
func (t *table) BatchPut(_ context.Context, puts []store.Put) error {
	if err := t.check(t.cellFamilies(puts)...); err != nil {
		return err
	}
	var row []byte
	if len(puts) == 1 {
		row = puts[0].Row
	}
	err := t.db.Update(func(tx *bbolt.Tx) error {
		root, err := t.root(tx)
		if err != nil {
			return err
		}
		for _, p := range puts {
			if err := putCells(root, p); err != nil {
				return err
			}
		}
		return nil
	})
	return apperrors.Store("put", t.name, row, err)
}

func (t *table) Increment(_ context.Context, row []byte, family string, qualifier []byte, delta int64) (int64, error) {
	if err := t.check(family); err != nil {
		return 0, err
	}
	var next int64
	err := t.db.Update(func(tx *bbolt.Tx) error {
		root, err := t.root(tx)
		if err != nil {
			return err
		}
		var current int64
		if fb := familyBucket(root, row, family); fb != nil {
			if v := fb.Get(qualifier); v != nil {
				if len(v) != 8 {
					return fmt.Errorf("%w: counter cell has %d bytes", apperrors.ErrDecode, len(v))
				}
				current = int64(binary.BigEndian.Uint64(v))
			}
		}
		next = current + delta
		return putCells(root, store.NewPut(row, family, qualifier, encodeCounter(next)))
	})
	if err != nil {
		return 0, apperrors.Store("increment", t.name, row, err)
	}
	return next, nil
}

func (t *table) SetCounter(ctx context.Context, row []byte, family string, qualifier []byte, value int64) error {
	return t.Put(ctx, store.NewPut(row, family, qualifier, encodeCounter(value)))
}

func (t *table) Counter(ctx context.Context, row []byte, family string, qualifier []byte) (int64, error) {
	v, err := t.GetCell(ctx, row, family, qualifier)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: counter cell has %d bytes", apperrors.ErrDecode, len(v))
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

type scanned struct {
	row   []byte
	cells []store.Cell
}

// Scan snapshots matching rows in one read transaction and calls fn after
// the transaction ends, so fn may write to the table.
func (t *table) Scan(ctx context.Context, family string, prefix []byte, fn func(row []byte, cells []store.Cell) error) error {
	if err := t.check(family); err != nil {
		return err
	}
	var rows []scanned
	err := t.db.View(func(tx *bbolt.Tx) error {
		root, err := t.root(tx)
		if err != nil {
			return err
		}
		c := root.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if v != nil {
				continue
			}
			fb := familyBucket(root, k, family)
			if fb == nil {
				continue
			}
			cells := readFamily(fb, family)
			if len(cells) == 0 {
				continue
			}
			rows = append(rows, scanned{row: bytes.Clone(k), cells: cells})
		}
		return nil
	})
	if err != nil {
		return apperrors.Store("scan", t.name, prefix, err)
	}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r.row, r.cells); err != nil {
			return err
		}
	}
	return nil
}

func encodeCounter(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
