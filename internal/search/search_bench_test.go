package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search/parser"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/memstore"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
)

func benchSearcher(b *testing.B, numDocs int) *Searcher {
	b.Helper()
	ctx := context.Background()
	pool := store.NewPool(memstore.New(), 16)
	b.Cleanup(func() { _ = pool.Close() })
	l := txlog.New(pool, "bench")
	if err := l.Init(ctx); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = l.Close() })
	for i := 0; i < numDocs; i++ {
		res, err := l.AssignDocumentID(ctx, []byte(fmt.Sprintf("doc-%d", i)))
		if err != nil {
			b.Fatal(err)
		}
		if err := l.StoreField(res.DocID, "gate", []byte(fmt.Sprintf("G%03d", (i*37)%500))); err != nil {
			b.Fatal(err)
		}
		positions := make([]int, i%5+1)
		for p := range positions {
			positions[p] = p * 3
		}
		if err := l.AddPosting(ctx, schema.Term{Field: "body", Text: "flight"}, res.DocID, positions); err != nil {
			b.Fatal(err)
		}
	}
	if err := l.Commit(ctx); err != nil {
		b.Fatal(err)
	}
	return New(pool, "bench", schema.Default(), codec.Varint{})
}

func BenchmarkQueryParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "delayed flight"},
		{"boolean_and", "runway AND closed AND inspection"},
		{"boolean_or", "gate OR terminal OR concourse"},
		{"with_not", "flight NOT cancelled"},
		{"fielded", "body:flight gate:B12"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = parser.Parse(q.query, "body")
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	for _, numDocs := range []int{100, 1000} {
		s := benchSearcher(b, numDocs)
		for _, sort := range [][]SortField{nil, {{Field: "gate"}}} {
			name := fmt.Sprintf("docs_%d/score", numDocs)
			if sort != nil {
				name = fmt.Sprintf("docs_%d/field", numDocs)
			}
			req := Request{Query: "flight", Sort: sort, Limit: 10}
			b.Run(name, func(b *testing.B) {
				ctx := context.Background()
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := s.Search(ctx, req); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
