// Package redisstore maps the column-family store contract onto Redis. Each
// row is one hash under "<prefix>t:<table>:<row>"; a cell is the hash field
// "<family>:<qualifier>". Counters are decimal hash fields driven by
// HINCRBY, which Redis executes atomically, so id allocation stays
// linearizable across processes.
package redisstore

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/redis"
)

// DefaultPrefix namespaces every key the backend writes.
const DefaultPrefix = "kvx:"

var validName = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Store is the Redis backend.
type Store struct {
	client *pkgredis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// New wraps an already connected client.
func New(client *pkgredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) tablesKey() string { return s.prefix + "tables" }

func (s *Store) familiesKey(name string) string { return s.prefix + "families:" + name }

func (s *Store) rowPrefix(name string) string { return s.prefix + "t:" + name + ":" }

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
	added, err := s.client.SAdd(ctx, s.tablesKey(), name)
	if err != nil {
		return apperrors.Store("create", name, nil, err)
	}
	if added == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrTableExists, name)
	}
	if len(families) > 0 {
		if _, err := s.client.SAdd(ctx, s.familiesKey(name), families...); err != nil {
			return apperrors.Store("create", name, nil, err)
		}
	}
	return nil
}

func (s *Store) DropTable(ctx context.Context, name string) error {
	removed, err := s.client.SRem(ctx, s.tablesKey(), name)
	if err != nil {
		return apperrors.Store("drop", name, nil, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}
	if _, err := s.client.FlushByPattern(ctx, s.rowPrefix(name)+"*"); err != nil {
		return apperrors.Store("drop", name, nil, err)
	}
	if err := s.client.Del(ctx, s.familiesKey(name)); err != nil {
		return apperrors.Store("drop", name, nil, err)
	}
	return nil
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.tablesKey(), name)
	if err != nil {
		return false, apperrors.Store("describe", name, nil, err)
	}
	return ok, nil
}

func (s *Store) OpenTable(ctx context.Context, name string) (store.Table, error) {
	ok, err := s.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTableNotFound, name)
	}
	members, err := s.client.SMembers(ctx, s.familiesKey(name))
	if err != nil {
		return nil, apperrors.Store("describe", name, nil, err)
	}
	families := make(map[string]struct{}, len(members))
	for _, f := range members {
		families[f] = struct{}{}
	}
	return &table{store: s, name: name, keyPrefix: s.rowPrefix(name), families: families}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type table struct {
	store     *Store
	name      string
	keyPrefix string
	families  map[string]struct{}
	closed    atomic.Bool
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

func (t *table) checkPut(p store.Put) error {
	for _, c := range p.Cells {
		if err := t.check(c.Family); err != nil {
			return err
		}
	}
	return nil
}

func (t *table) key(row []byte) string { return t.keyPrefix + string(row) }

func field(family string, qualifier []byte) string { return family + ":" + string(qualifier) }

func (t *table) GetCell(ctx context.Context, row []byte, family string, qualifier []byte) ([]byte, error) {
	if err := t.check(family); err != nil {
		return nil, err
	}
	v, err := t.store.client.HGet(ctx, t.key(row), field(family, qualifier))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Store("get", t.name, row, err)
	}
	return v, nil
}

func (t *table) GetFamily(ctx context.Context, row []byte, family string) ([]store.Cell, error) {
	if err := t.check(family); err != nil {
		return nil, err
	}
	all, err := t.store.client.HGetAll(ctx, t.key(row))
	if err != nil {
		return nil, apperrors.Store("get", t.name, row, err)
	}
	return familyCells(all, family), nil
}

func familyCells(fields map[string]string, family string) []store.Cell {
	prefix := family + ":"
	cells := make([]store.Cell, 0, len(fields))
	for f, v := range fields {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		cells = append(cells, store.Cell{
			Family:    family,
			Qualifier: []byte(f[len(prefix):]),
			Value:     []byte(v),
		})
	}
	store.SortCells(cells)
	return cells
}

func hashFields(p store.Put) map[string][]byte {
	fields := make(map[string][]byte, len(p.Cells))
	for _, c := range p.Cells {
		fields[field(c.Family, c.Qualifier)] = c.Value
	}
	return fields
}

func (t *table) Put(ctx context.Context, p store.Put) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := t.checkPut(p); err != nil {
		return err
	}
	if len(p.Cells) == 0 {
		return nil
	}
	return apperrors.Store("put", t.name, p.Row, t.store.client.HSet(ctx, t.key(p.Row), hashFields(p)))
}

func (t *table) BatchPut(ctx context.Context, puts []store.Put) error {
	if err := t.check(); err != nil {
		return err
	}
	for _, p := range puts {
		if err := t.checkPut(p); err != nil {
			return err
		}
	}
	writes := make([]pkgredis.HashWrite, 0, len(puts))
	for _, p := range puts {
		if len(p.Cells) == 0 {
			continue
		}
		writes = append(writes, pkgredis.HashWrite{Key: t.key(p.Row), Fields: hashFields(p)})
	}
	return apperrors.Store("batch", t.name, nil, t.store.client.PipelineHSet(ctx, writes))
}

func (t *table) Increment(ctx context.Context, row []byte, family string, qualifier []byte, delta int64) (int64, error) {
	if err := t.check(family); err != nil {
		return 0, err
	}
	v, err := t.store.client.HIncrBy(ctx, t.key(row), field(family, qualifier), delta)
	if err != nil {
		return 0, apperrors.Store("increment", t.name, row, err)
	}
	return v, nil
}

func (t *table) SetCounter(ctx context.Context, row []byte, family string, qualifier []byte, value int64) error {
	return t.Put(ctx, store.NewPut(row, family, qualifier, []byte(strconv.FormatInt(value, 10))))
}

func (t *table) Counter(ctx context.Context, row []byte, family string, qualifier []byte) (int64, error) {
	v, err := t.GetCell(ctx, row, family, qualifier)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %q: %v", apperrors.ErrDecode, v, err)
	}
	return n, nil
}

func (t *table) Scan(ctx context.Context, family string, prefix []byte, fn func(row []byte, cells []store.Cell) error) error {
	if err := t.check(family); err != nil {
		return err
	}
	var rows [][]byte
	err := t.store.client.ScanKeys(ctx, t.keyPrefix+"*", func(key string) error {
		row := []byte(key[len(t.keyPrefix):])
		if bytes.HasPrefix(row, prefix) {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return apperrors.Store("scan", t.name, prefix, err)
	}
	sort.Slice(rows, func(i, j int) bool { return bytes.Compare(rows[i], rows[j]) < 0 })

	for _, row := range rows {
		cells, err := t.GetFamily(ctx, row, family)
		if err != nil {
			return err
		}
		if len(cells) == 0 {
			continue
		}
		if err := fn(row, cells); err != nil {
			return err
		}
	}
	return nil
}
