package search

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// StoredDocument is a document read back by primary key.
type StoredDocument struct {
	DocID      int64             `json:"doc_id"`
	PrimaryKey string            `json:"primary_key"`
	Fields     map[string]string `json:"fields"`
}

// Document resolves a primary key to its id and reads every stored field.
// An unknown key reports ErrNotFound.
func (s *Searcher) Document(ctx context.Context, primaryKey string) (*StoredDocument, error) {
	id, err := s.ids.Lookup(ctx, []byte(primaryKey))
	if err != nil {
		return nil, err
	}
	doc := &StoredDocument{DocID: id, PrimaryKey: primaryKey, Fields: make(map[string]string)}
	err = s.pool.With(ctx, s.table, func(t store.Table) error {
		cells, err := t.GetFamily(ctx, schema.DocKey(id), s.schema.FamilyFields)
		if err != nil {
			return apperrors.Store("get", s.table, schema.DocKey(id), err)
		}
		for _, c := range cells {
			doc.Fields[string(c.Qualifier)] = string(c.Value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading document %q: %w", primaryKey, err)
	}
	return doc, nil
}
