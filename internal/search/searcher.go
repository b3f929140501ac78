// Package search answers queries over an index: it matches and scores plan
// terms against the positional postings, then either keeps the best scores
// or re-ranks the matches by one stored field read from the store.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/identity"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search/parser"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// ScoreField names relevance in a sort request.
const ScoreField = "_score"

const (
	pathScore = "score"
	pathField = "field"
)

// SortField is one requested sort key. Only ascending order is supported.
type SortField struct {
	Field string `json:"field"`
}

type Request struct {
	Query string      `json:"query"`
	Sort  []SortField `json:"sort,omitempty"`
	Limit int         `json:"limit"`
}

type ResultDoc struct {
	DocID      int64   `json:"doc_id"`
	PrimaryKey string  `json:"primary_key,omitempty"`
	Score      float64 `json:"score"`
	SortValue  *string `json:"sort_value,omitempty"`
}

type Result struct {
	Query     string         `json:"query"`
	SortedBy  string         `json:"sorted_by"`
	TotalHits int            `json:"total_hits"`
	Results   []ResultDoc    `json:"results"`
	TermStats map[string]int `json:"term_stats"`
}

// Searcher runs requests against one index table.
type Searcher struct {
	pool         *store.Pool
	table        string
	schema       schema.Schema
	ids          *identity.Map
	matcher      *TermMatcher
	defaultField string
	defaultLimit int
	maxResults   int
	parallel     int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Searcher)

// WithDefaultField sets the field of query words written without one.
func WithDefaultField(f string) Option {
	return func(s *Searcher) { s.defaultField = f }
}

// WithLimits sets the limit used when a request has none and the cap on any
// requested limit.
func WithLimits(defaultLimit, maxResults int) Option {
	return func(s *Searcher) {
		s.defaultLimit = defaultLimit
		s.maxResults = maxResults
	}
}

// WithFetchParallel bounds concurrent per-document reads.
func WithFetchParallel(n int) Option {
	return func(s *Searcher) { s.parallel = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) { s.metrics = m }
}

func New(pool *store.Pool, table string, sch schema.Schema, c codec.Codec, opts ...Option) *Searcher {
	ids := identity.New(pool, table, sch)
	s := &Searcher{
		pool:         pool,
		table:        table,
		schema:       sch,
		ids:          ids,
		matcher:      NewTermMatcher(pool, table, sch, c, ids),
		defaultField: "body",
		defaultLimit: 10,
		maxResults:   1000,
		parallel:     4,
		logger:       slog.Default().With("component", "searcher", "table", table),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSort checks a sort request and returns the stored field to sort
// by, or "" for relevance. At most one key is allowed, so relevance and a
// field cannot be combined.
func ValidateSort(sort []SortField) (string, error) {
	switch len(sort) {
	case 0:
		return "", nil
	case 1:
	default:
		return "", fmt.Errorf("%w: %d sort fields requested, at most one is supported", apperrors.ErrInvalidSort, len(sort))
	}
	switch f := sort[0].Field; f {
	case "":
		return "", fmt.Errorf("%w: empty sort field", apperrors.ErrInvalidSort)
	case ScoreField:
		return "", nil
	default:
		return f, nil
	}
}

// Search validates the request, matches the query and returns up to the
// effective limit of hits. Sort errors are reported before the store is
// touched.
func (s *Searcher) Search(ctx context.Context, req Request) (*Result, error) {
	field, err := ValidateSort(req.Sort)
	if err != nil {
		return nil, err
	}
	path := pathScore
	if field != "" {
		path = pathField
	}
	start := time.Now()
	res, err := s.search(ctx, req, field)
	n := 0
	if res != nil {
		n = len(res.Results)
	}
	s.metrics.Search(path, n, time.Since(start), err)
	return res, err
}

func (s *Searcher) search(ctx context.Context, req Request, field string) (*Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if s.maxResults > 0 && limit > s.maxResults {
		limit = s.maxResults
	}

	plan := parser.Parse(req.Query, s.defaultField)
	matchCtx, span := tracing.StartChild(ctx, "match")
	matched, err := s.matcher.Match(matchCtx, plan)
	span.End()
	if err != nil {
		return nil, err
	}
	span.SetAttr("candidates", len(matched.Hits))
	result := &Result{
		Query:     req.Query,
		SortedBy:  ScoreField,
		TotalHits: len(matched.Hits),
		TermStats: matched.TermStats,
	}

	rankCtx, span := tracing.StartChild(ctx, "rank")
	if field == "" {
		for _, hit := range topScores(matched.Hits, limit) {
			result.Results = append(result.Results, ResultDoc{DocID: hit.DocID, Score: hit.Score})
		}
	} else {
		result.SortedBy = field
		fc := NewFieldCollector(s.pool, s.table, s.schema, field, limit, s.parallel)
		if err := fc.Collect(rankCtx, matched.Hits); err != nil {
			span.End()
			return nil, err
		}
		for _, fh := range fc.Results() {
			doc := ResultDoc{DocID: fh.DocID, Score: fh.Score}
			if !fh.Missing {
				v := string(fh.Value)
				doc.SortValue = &v
			}
			result.Results = append(result.Results, doc)
		}
	}
	span.SetAttr("sorted_by", result.SortedBy)
	span.End()
	if result.Results == nil {
		result.Results = []ResultDoc{}
	}
	resolveCtx, span := tracing.StartChild(ctx, "resolve_keys")
	err = s.resolveKeys(resolveCtx, result.Results)
	span.End()
	if err != nil {
		return nil, err
	}

	s.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", len(plan.Terms),
		"sorted_by", result.SortedBy,
		"candidates", result.TotalHits,
		"results", len(result.Results),
	)
	return result, nil
}

// resolveKeys fills in primary keys. A document whose reverse row is missing
// keeps an empty key.
func (s *Searcher) resolveKeys(ctx context.Context, docs []ResultDoc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.parallel, 1))
	for i := range docs {
		g.Go(func() error {
			pk, err := s.ids.PrimaryKey(gctx, docs[i].DocID)
			if apperrors.Is(err, apperrors.ErrNotFound) {
				s.logger.Debug("hit without reverse row", "doc_id", docs[i].DocID)
				return nil
			}
			if err != nil {
				return err
			}
			docs[i].PrimaryKey = string(pk)
			return nil
		})
	}
	return g.Wait()
}
