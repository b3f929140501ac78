package search

import (
	"bytes"
	"container/heap"
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// fetchBatch is how many sort keys are read ahead per parallel reader.
const fetchBatch = 8

// FieldHit is a hit together with the stored value it was sorted by.
type FieldHit struct {
	Hit
	Value   []byte
	Missing bool
}

// FieldCollector keeps the nDocs hits with the smallest values of one stored
// field, compared as raw bytes. Equal values keep match order and documents
// without the field sort after every document that has it. Sort keys are
// read from the store per document; nothing is cached between queries.
type FieldCollector struct {
	pool     *store.Pool
	table    string
	schema   schema.Schema
	field    string
	nDocs    int
	parallel int

	h   fieldHeap
	seq int
}

// NewFieldCollector returns a collector for at most nDocs hits. parallel
// bounds the concurrent sort-key reads of Collect.
func NewFieldCollector(pool *store.Pool, table string, sch schema.Schema, field string, nDocs, parallel int) *FieldCollector {
	if parallel < 1 {
		parallel = 1
	}
	return &FieldCollector{
		pool:     pool,
		table:    table,
		schema:   sch,
		field:    field,
		nDocs:    nDocs,
		parallel: parallel,
		h:        make(fieldHeap, 0, max(nDocs, 0)),
	}
}

// Add fetches the sort key of one hit and offers it. Hits must be added in
// match order.
func (c *FieldCollector) Add(ctx context.Context, hit Hit) error {
	e, err := c.fetch(ctx, hit)
	if err != nil {
		return err
	}
	c.offer(e)
	return nil
}

// Collect offers hits in order, reading their sort keys ahead in bounded
// parallel batches. The read-ahead window is separate from the live entries
// and never larger than max(nDocs, parallel).
func (c *FieldCollector) Collect(ctx context.Context, hits []Hit) error {
	if c.nDocs <= 0 {
		return nil
	}
	batch := c.window()
	for start := 0; start < len(hits); start += batch {
		end := min(start+batch, len(hits))
		fetched := make([]fieldEntry, end-start)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.parallel)
		for i, hit := range hits[start:end] {
			g.Go(func() error {
				e, err := c.fetch(gctx, hit)
				fetched[i] = e
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, e := range fetched {
			c.offer(e)
		}
	}
	return nil
}

func (c *FieldCollector) window() int {
	return min(c.parallel*fetchBatch, max(c.nDocs, c.parallel))
}

// Len is the number of live entries, never more than nDocs.
func (c *FieldCollector) Len() int { return c.h.Len() }

// Results returns the collected hits in ascending order.
func (c *FieldCollector) Results() []FieldHit {
	sorted := make(fieldHeap, len(c.h))
	copy(sorted, c.h)
	out := make([]FieldHit, len(sorted))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&sorted).(fieldEntry).FieldHit
	}
	return out
}

func (c *FieldCollector) fetch(ctx context.Context, hit Hit) (fieldEntry, error) {
	e := fieldEntry{FieldHit: FieldHit{Hit: hit}}
	err := c.pool.With(ctx, c.table, func(t store.Table) error {
		v, err := t.GetCell(ctx, schema.DocKey(hit.DocID), c.schema.FamilyFields, []byte(c.field))
		if apperrors.Is(err, apperrors.ErrNotFound) {
			e.Missing = true
			return nil
		}
		e.Value = v
		return err
	})
	if err != nil {
		return e, fmt.Errorf("reading sort field %s of %d: %w", c.field, hit.DocID, err)
	}
	return e, nil
}

func (c *FieldCollector) offer(e fieldEntry) {
	if c.nDocs <= 0 {
		return
	}
	e.seq = c.seq
	c.seq++
	if c.h.Len() < c.nDocs {
		heap.Push(&c.h, e)
		return
	}
	if compareEntries(e, c.h[0]) < 0 {
		c.h[0] = e
		heap.Fix(&c.h, 0)
	}
}

type fieldEntry struct {
	FieldHit
	seq int
}

func compareEntries(x, y fieldEntry) int {
	switch {
	case x.Missing && !y.Missing:
		return 1
	case !x.Missing && y.Missing:
		return -1
	case !x.Missing:
		if c := bytes.Compare(x.Value, y.Value); c != 0 {
			return c
		}
	}
	return x.seq - y.seq
}

// fieldHeap keeps the worst entry on top so it can be evicted.
type fieldHeap []fieldEntry

func (h fieldHeap) Len() int { return len(h) }

func (h fieldHeap) Less(i, j int) bool { return compareEntries(h[i], h[j]) > 0 }

func (h fieldHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *fieldHeap) Push(x interface{}) {
	*h = append(*h, x.(fieldEntry))
}

func (h *fieldHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topScores keeps the limit best-scoring hits, highest first. Equal scores
// keep match order.
func topScores(hits []Hit, limit int) []Hit {
	if limit <= 0 {
		return []Hit{}
	}
	h := &scoredHeap{}
	for _, hit := range hits {
		heap.Push(h, hit)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]Hit, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Hit)
	}
	return result
}

type scoredHeap []Hit

func (h scoredHeap) Len() int { return len(h) }

func (h scoredHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x interface{}) {
	*h = append(*h, x.(Hit))
}

func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
