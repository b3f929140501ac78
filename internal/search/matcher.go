package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/identity"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search/parser"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Hit is one matched document.
type Hit struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
}

// MatchResult holds the hits of a plan in match order, ascending document id.
type MatchResult struct {
	Hits      []Hit
	TermStats map[string]int
}

type posting struct {
	doc  int64
	freq int
}

// TermMatcher evaluates a query plan against the positional postings and
// scores every match with BM25. Document lengths are not stored, so every
// document is treated as average length.
type TermMatcher struct {
	pool   *store.Pool
	table  string
	schema schema.Schema
	codec  codec.Codec
	ids    *identity.Map
	logger *slog.Logger
}

func NewTermMatcher(pool *store.Pool, table string, sch schema.Schema, c codec.Codec, ids *identity.Map) *TermMatcher {
	return &TermMatcher{
		pool:   pool,
		table:  table,
		schema: sch,
		codec:  c,
		ids:    ids,
		logger: slog.Default().With("component", "term-matcher", "table", table),
	}
}

// Match reads the postings of every plan term with one cursor, combines them
// per the plan type, removes excluded documents and scores what is left.
func (m *TermMatcher) Match(ctx context.Context, plan *parser.QueryPlan) (MatchResult, error) {
	res := MatchResult{Hits: []Hit{}, TermStats: make(map[string]int)}
	if len(plan.Terms) == 0 {
		return res, nil
	}
	r, err := postings.NewReader(ctx, m.pool, m.table, m.schema, m.codec)
	if err != nil {
		return res, err
	}
	defer r.Close()

	postingsPerTerm := make(map[string][]posting)
	for _, term := range plan.Terms {
		list, err := readAll(ctx, r, term)
		if err != nil {
			return res, fmt.Errorf("matching term %s: %w", term, err)
		}
		postingsPerTerm[term.String()] = list
		res.TermStats[term.String()] = len(list)
	}
	exclude := make(map[int64]struct{})
	for _, term := range plan.ExcludeTerms {
		list, err := readAll(ctx, r, term)
		if err != nil {
			return res, fmt.Errorf("matching excluded term %s: %w", term, err)
		}
		for _, p := range list {
			exclude[p.doc] = struct{}{}
		}
	}

	var candidates map[int64]struct{}
	switch plan.Type {
	case parser.QueryOR:
		candidates = unionPostings(postingsPerTerm)
	default:
		candidates = intersectPostings(postingsPerTerm)
	}
	for doc := range exclude {
		delete(candidates, doc)
	}
	if len(candidates) == 0 {
		return res, nil
	}

	totalDocs, err := m.ids.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("counting documents: %w", err)
	}
	scores := make(map[int64]float64, len(candidates))
	for _, list := range postingsPerTerm {
		idf := computeIDF(totalDocs, int64(len(list)))
		for _, p := range list {
			if _, ok := candidates[p.doc]; ok {
				scores[p.doc] += idf * computeTFNorm(float64(p.freq))
			}
		}
	}
	res.Hits = make([]Hit, 0, len(scores))
	for doc, score := range scores {
		res.Hits = append(res.Hits, Hit{DocID: doc, Score: math.Round(score*10000) / 10000})
	}
	slices.SortFunc(res.Hits, func(x, y Hit) int { return cmp.Compare(x.DocID, y.DocID) })
	m.logger.Debug("plan matched",
		"query", plan.RawQuery,
		"type", plan.Type.String(),
		"hits", len(res.Hits),
	)
	return res, nil
}

func readAll(ctx context.Context, r *postings.Reader, term schema.Term) ([]posting, error) {
	if err := r.Seek(ctx, term); err != nil {
		return nil, err
	}
	list := make([]posting, 0, r.DocFreq())
	for r.Next() {
		freq, err := r.Freq(ctx)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		list = append(list, posting{doc: r.Doc(), freq: freq})
	}
	return list, nil
}

func intersectPostings(postingsPerTerm map[string][]posting) map[int64]struct{} {
	candidates := make(map[int64]struct{})
	if len(postingsPerTerm) == 0 {
		return candidates
	}
	shortestTerm := ""
	shortestLen := math.MaxInt
	for term, list := range postingsPerTerm {
		if len(list) < shortestLen {
			shortestLen = len(list)
			shortestTerm = term
		}
	}
	for _, p := range postingsPerTerm[shortestTerm] {
		candidates[p.doc] = struct{}{}
	}
	for term, list := range postingsPerTerm {
		if term == shortestTerm {
			continue
		}
		docSet := make(map[int64]struct{}, len(list))
		for _, p := range list {
			docSet[p.doc] = struct{}{}
		}
		for doc := range candidates {
			if _, ok := docSet[doc]; !ok {
				delete(candidates, doc)
			}
		}
	}
	return candidates
}

func unionPostings(postingsPerTerm map[string][]posting) map[int64]struct{} {
	result := make(map[int64]struct{})
	for _, list := range postingsPerTerm {
		for _, p := range list {
			result[p.doc] = struct{}{}
		}
	}
	return result
}

func computeIDF(totalDocs, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// computeTFNorm is the BM25 term-frequency factor at average document length.
func computeTFNorm(termFreq float64) float64 {
	const lengthRatio = 1.0
	return (termFreq * (k1 + 1)) / (termFreq + k1*(1-b+b*lengthRatio))
}
