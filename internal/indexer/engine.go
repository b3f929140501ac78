// Package indexer drives the write path for whole documents: allocate an id,
// buffer the stored fields, tokenize the indexed fields into positional
// postings and commit the batch.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/resilience"
)

// Document is one input document. Every field is stored; the indexed ones
// are also tokenized.
type Document struct {
	PrimaryKey string            `json:"primary_key"`
	Fields     map[string]string `json:"fields"`
}

// Indexed reports what IndexDocument wrote.
type Indexed struct {
	DocID  int64 `json:"doc_id"`
	Terms  int   `json:"terms"`
	Tokens int   `json:"tokens"`
	// PartialIdentity is set when only one direction of the id map was
	// written; the document itself was indexed.
	PartialIdentity bool `json:"partial_identity,omitempty"`
}

type Engine struct {
	mu      sync.Mutex
	log     *txlog.Log
	indexed []string
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Engine)

// WithIndexedFields restricts tokenization to the named fields.
func WithIndexedFields(fields ...string) Option {
	return func(e *Engine) { e.indexed = fields }
}

// WithCommitRetry configures how failed commits are retried.
func WithCommitRetry(attempts int, delay time.Duration) Option {
	return func(e *Engine) {
		e.retry.MaxAttempts = attempts
		e.retry.InitialDelay = delay
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wraps an initialized or opened transaction log.
func NewEngine(l *txlog.Log, opts ...Option) *Engine {
	e := &Engine{
		log:    l,
		retry:  resilience.RetryConfig{RetryIf: apperrors.Retryable},
		logger: slog.Default().With("component", "indexer", "table", l.Name()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IndexDocument indexes one document and commits it. Commit failures that
// are worth retrying are retried; id allocation never is, since a repeat
// would allocate a second id.
func (e *Engine) IndexDocument(ctx context.Context, doc Document) (Indexed, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, err := e.add(ctx, doc)
	if err != nil {
		return out, err
	}
	if err := e.commit(ctx); err != nil {
		return out, fmt.Errorf("committing document %q: %w", doc.PrimaryKey, err)
	}
	e.metrics.DocIndexed()
	e.logger.Debug("document indexed",
		"primary_key", doc.PrimaryKey,
		"doc_id", out.DocID,
		"terms", out.Terms,
	)
	return out, nil
}

// IndexBatch indexes docs with a single commit at the end. It stops at the
// first failing document; the mutations of the documents before it are
// still committed.
func (e *Engine) IndexBatch(ctx context.Context, docs []Document) ([]Indexed, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Indexed, 0, len(docs))
	var addErr error
	for _, doc := range docs {
		res, err := e.add(ctx, doc)
		if err != nil {
			addErr = err
			break
		}
		out = append(out, res)
	}
	if err := e.commit(ctx); err != nil {
		return out, apperrors.Join(addErr, fmt.Errorf("committing batch of %d: %w", len(out), err))
	}
	for range out {
		e.metrics.DocIndexed()
	}
	e.logger.Info("batch indexed", "documents", len(out))
	return out, addErr
}

// Flush forces the current segment out.
func (e *Engine) Flush(ctx context.Context) (segment.Flushed, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Flush(ctx)
}

// Log is the transaction log the engine writes through.
func (e *Engine) Log() *txlog.Log { return e.log }

func (e *Engine) add(ctx context.Context, doc Document) (Indexed, error) {
	out := Indexed{DocID: -1}
	if doc.PrimaryKey == "" {
		return out, fmt.Errorf("%w: document without primary key", apperrors.ErrInvalidInput)
	}
	res, err := e.log.AssignDocumentID(ctx, []byte(doc.PrimaryKey))
	if res.DocID < 0 || (err != nil && !res.ForwardWritten && !res.ReverseWritten) {
		return out, fmt.Errorf("assigning id to %q: %w", doc.PrimaryKey, err)
	}
	out.DocID = res.DocID
	if err != nil {
		out.PartialIdentity = true
		e.logger.Warn("indexing with a half-written id map entry",
			"primary_key", doc.PrimaryKey,
			"doc_id", res.DocID,
			"error", err,
		)
	}

	fields := make([]string, 0, len(doc.Fields))
	for f := range doc.Fields {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	for _, f := range fields {
		if err := e.log.StoreField(res.DocID, f, []byte(doc.Fields[f])); err != nil {
			return out, fmt.Errorf("storing field %s of %q: %w", f, doc.PrimaryKey, err)
		}
	}

	for _, f := range fields {
		if !e.isIndexed(f) {
			continue
		}
		positions := tokenizer.Positions(doc.Fields[f])
		terms := make([]string, 0, len(positions))
		for t := range positions {
			terms = append(terms, t)
		}
		slices.Sort(terms)
		for _, text := range terms {
			term := schema.Term{Field: f, Text: text}
			if err := e.log.AddPosting(ctx, term, res.DocID, positions[text]); err != nil {
				return out, fmt.Errorf("indexing %s of %q: %w", term, doc.PrimaryKey, err)
			}
			out.Terms++
			out.Tokens += len(positions[text])
		}
	}
	return out, nil
}

func (e *Engine) commit(ctx context.Context) error {
	return resilience.Retry(ctx, "commit", e.retry, func() error {
		return e.log.Commit(ctx)
	})
}

func (e *Engine) isIndexed(field string) bool {
	return len(e.indexed) == 0 || slices.Contains(e.indexed, field)
}
