package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	docs []indexer.Document
	err  error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, doc indexer.Document) (indexer.Indexed, error) {
	if f.err != nil {
		return indexer.Indexed{DocID: -1}, f.err
	}
	f.docs = append(f.docs, doc)
	return indexer.Indexed{DocID: int64(len(f.docs) - 1)}, nil
}

func TestHandleMessageIndexesEvent(t *testing.T) {
	fake := &fakeIndexer{}
	handle := HandleMessage("flights", fake)

	err := handle(context.Background(), kafka.Message{
		Key:     []byte("k1"),
		Value:   []byte(`{"primary_key":"doc-1","fields":{"body":"runway closed"}}`),
		Headers: map[string]string{kafka.HeaderIndex: "flights"},
	})
	require.NoError(t, err)
	require.Len(t, fake.docs, 1)
	assert.Equal(t, "doc-1", fake.docs[0].PrimaryKey)
	assert.Equal(t, "runway closed", fake.docs[0].Fields["body"])
}

func TestHandleMessageFallsBackToMessageKey(t *testing.T) {
	fake := &fakeIndexer{}
	require.NoError(t, HandleMessage("flights", fake)(context.Background(), kafka.Message{
		Key:   []byte("from-key"),
		Value: []byte(`{"fields":{"body":"x"}}`),
	}))
	require.Len(t, fake.docs, 1)
	assert.Equal(t, "from-key", fake.docs[0].PrimaryKey)
}

func TestHandleMessageSkipsUndecodable(t *testing.T) {
	fake := &fakeIndexer{}
	err := HandleMessage("flights", fake)(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.NoError(t, err)
	assert.Empty(t, fake.docs)
}

func TestHandleMessageReturnsIndexingErrors(t *testing.T) {
	fake := &fakeIndexer{err: apperrors.ErrStoreUnavailable}
	err := HandleMessage("flights", fake)(context.Background(), kafka.Message{Value: []byte(`{"primary_key":"a"}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStoreUnavailable))
	assert.True(t, apperrors.Retryable(err))
}

func TestHandleMessageSkipsOtherIndexes(t *testing.T) {
	fake := &fakeIndexer{}
	err := HandleMessage("flights", fake)(context.Background(), kafka.Message{
		Value:   []byte(`{"primary_key":"a","fields":{"body":"x"}}`),
		Headers: map[string]string{kafka.HeaderIndex: "airports"},
	})
	assert.NoError(t, err)
	assert.Empty(t, fake.docs)
}
