package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// DefaultMaxIdle is the number of idle handles kept per table.
const DefaultMaxIdle = 8

// Pool hands out table handles and takes them back after use. Idle handles
// beyond maxIdle per table are closed on return.
type Pool struct {
	store   Store
	maxIdle int
	mu      sync.Mutex
	idle    map[string][]Table
	closed  bool
	logger  *slog.Logger
}

// NewPool creates a Pool over st. A non-positive maxIdle selects
// DefaultMaxIdle.
func NewPool(st Store, maxIdle int) *Pool {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &Pool{
		store:   st,
		maxIdle: maxIdle,
		idle:    make(map[string][]Table),
		logger:  slog.Default().With("component", "table-pool"),
	}
}

// Store returns the backend the pool opens handles from.
func (p *Pool) Store() Store {
	return p.store
}

// Get checks out a handle for the named table.
func (p *Pool) Get(ctx context.Context, name string) (Table, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("table pool: %w", apperrors.ErrClosed)
	}
	if handles := p.idle[name]; len(handles) > 0 {
		t := handles[len(handles)-1]
		p.idle[name] = handles[:len(handles)-1]
		p.mu.Unlock()
		return t, nil
	}
	p.mu.Unlock()

	t, err := p.store.OpenTable(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("opening table %s: %w", name, err)
	}
	return t, nil
}

// Put returns a handle to the pool.
func (p *Pool) Put(t Table) {
	if t == nil {
		return
	}
	p.mu.Lock()
	if !p.closed && len(p.idle[t.Name()]) < p.maxIdle {
		p.idle[t.Name()] = append(p.idle[t.Name()], t)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	if err := t.Close(); err != nil {
		p.logger.Warn("closing surplus table handle", "table", t.Name(), "error", err)
	}
}

// Discard drops every idle handle of the named table, used after the table
// has been dropped.
func (p *Pool) Discard(name string) {
	p.mu.Lock()
	handles := p.idle[name]
	delete(p.idle, name)
	p.mu.Unlock()
	for _, t := range handles {
		_ = t.Close()
	}
}

// Close closes every idle handle. Handles still checked out are closed when
// they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = make(map[string][]Table)
	p.mu.Unlock()

	var firstErr error
	for name, handles := range idle {
		for _, t := range handles {
			if err := t.Close(); err != nil {
				p.logger.Error("closing table handle", "table", name, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// With checks out a handle, runs fn and returns the handle.
func (p *Pool) With(ctx context.Context, name string, fn func(Table) error) error {
	t, err := p.Get(ctx, name)
	if err != nil {
		return err
	}
	defer p.Put(t)
	return fn(t)
}
