// Package memstore is an in-process implementation of store.Store. Rows are
// kept in maps and returned in byte order so it behaves like the sorted
// distributed backends. It backs the unit tests and embedded use.
package memstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// FaultFunc is consulted before every data operation; a non-nil return fails
// the operation with that error. op is one of get, put, increment, scan.
type FaultFunc func(op string, row []byte) error

type row map[string]map[string][]byte

type table struct {
	mu       sync.RWMutex
	families map[string]struct{}
	rows     map[string]row
}

// Store is the in-memory backend.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	fault  atomic.Pointer[FaultFunc]
	ops    atomic.Int64
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// SetFault installs fn as the fault hook; nil removes it.
func (s *Store) SetFault(fn FaultFunc) {
	if fn == nil {
		s.fault.Store(nil)
		return
	}
	s.fault.Store(&fn)
}

// RoundTrips reports how many data operations have been served.
func (s *Store) RoundTrips() int64 {
	return s.ops.Load()
}

func (s *Store) CreateTable(_ context.Context, name string, families []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return fmt.Errorf("%w: %s", apperrors.ErrTableExists, name)
	}
	t := &table{families: make(map[string]struct{}, len(families)), rows: make(map[string]row)}
	for _, f := range families {
		t.families[f] = struct{}{}
	}
	s.tables[name] = t
	return nil
}

func (s *Store) DropTable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}
	delete(s.tables, name)
	return nil
}

func (s *Store) TableExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[name]
	return ok, nil
}

func (s *Store) OpenTable(_ context.Context, name string) (store.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tables[name]; !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}
	return &handle{store: s, name: name}, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) lookup(name string) (*table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}
	return t, nil
}

type handle struct {
	store  *Store
	name   string
	closed atomic.Bool
}

func (h *handle) Name() string { return h.name }

func (h *handle) Close() error {
	h.closed.Store(true)
	return nil
}

// begin runs the shared preamble of every data operation.
func (h *handle) begin(op string, row []byte) (*table, error) {
	if h.closed.Load() {
		return nil, fmt.Errorf("table %s: %w", h.name, apperrors.ErrClosed)
	}
	h.store.ops.Add(1)
	if fn := h.store.fault.Load(); fn != nil {
		if err := (*fn)(op, row); err != nil {
			return nil, apperrors.Store(op, h.name, row, err)
		}
	}
	return h.store.lookup(h.name)
}

func (t *table) checkFamily(family string) error {
	if _, ok := t.families[family]; !ok {
		return fmt.Errorf("%w: no such column family %q", apperrors.ErrInvalidInput, family)
	}
	return nil
}

func (h *handle) GetCell(_ context.Context, rowKey []byte, family string, qualifier []byte) ([]byte, error) {
	t, err := h.begin("get", rowKey)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkFamily(family); err != nil {
		return nil, err
	}
	v, ok := t.rows[string(rowKey)][family][string(qualifier)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (h *handle) GetFamily(_ context.Context, rowKey []byte, family string) ([]store.Cell, error) {
	t, err := h.begin("get", rowKey)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkFamily(family); err != nil {
		return nil, err
	}
	return familyCells(t.rows[string(rowKey)], family), nil
}

func familyCells(r row, family string) []store.Cell {
	cols := r[family]
	cells := make([]store.Cell, 0, len(cols))
	for q, v := range cols {
		cells = append(cells, store.Cell{Family: family, Qualifier: []byte(q), Value: bytes.Clone(v)})
	}
	store.SortCells(cells)
	return cells
}

func (h *handle) Put(_ context.Context, p store.Put) error {
	t, err := h.begin("put", p.Row)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.apply(p)
}

func (t *table) apply(p store.Put) error {
	for _, c := range p.Cells {
		if err := t.checkFamily(c.Family); err != nil {
			return err
		}
	}
	r, ok := t.rows[string(p.Row)]
	if !ok {
		r = make(row)
		t.rows[string(p.Row)] = r
	}
	for _, c := range p.Cells {
		cols, ok := r[c.Family]
		if !ok {
			cols = make(map[string][]byte)
			r[c.Family] = cols
		}
		cols[string(c.Qualifier)] = bytes.Clone(c.Value)
	}
	return nil
}

// BatchPut applies puts one by one so a fault part-way through leaves the
// earlier puts in place, mirroring the distributed backends.
func (h *handle) BatchPut(ctx context.Context, puts []store.Put) error {
	for _, p := range puts {
		if err := h.Put(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (h *handle) Increment(_ context.Context, rowKey []byte, family string, qualifier []byte, delta int64) (int64, error) {
	t, err := h.begin("increment", rowKey)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkFamily(family); err != nil {
		return 0, err
	}
	var current int64
	if v, ok := t.rows[string(rowKey)][family][string(qualifier)]; ok {
		if len(v) != 8 {
			return 0, fmt.Errorf("%w: counter cell has %d bytes", apperrors.ErrDecode, len(v))
		}
		current = int64(binary.BigEndian.Uint64(v))
	}
	next := current + delta
	return next, t.apply(store.NewPut(rowKey, family, qualifier, encodeCounter(next)))
}

func (h *handle) SetCounter(ctx context.Context, rowKey []byte, family string, qualifier []byte, value int64) error {
	return h.Put(ctx, store.NewPut(rowKey, family, qualifier, encodeCounter(value)))
}

func (h *handle) Counter(ctx context.Context, rowKey []byte, family string, qualifier []byte) (int64, error) {
	v, err := h.GetCell(ctx, rowKey, family, qualifier)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: counter cell has %d bytes", apperrors.ErrDecode, len(v))
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

func (h *handle) Scan(ctx context.Context, family string, prefix []byte, fn func(row []byte, cells []store.Cell) error) error {
	t, err := h.begin("scan", prefix)
	if err != nil {
		return err
	}
	t.mu.RLock()
	if err := t.checkFamily(family); err != nil {
		t.mu.RUnlock()
		return err
	}
	keys := make([]string, 0)
	for k, r := range t.rows {
		if strings.HasPrefix(k, string(prefix)) && len(r[family]) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make([][]store.Cell, len(keys))
	for i, k := range keys {
		snapshot[i] = familyCells(t.rows[k], family)
	}
	t.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn([]byte(k), snapshot[i]); err != nil {
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
