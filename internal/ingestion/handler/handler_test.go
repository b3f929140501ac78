package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (p *fakeProducer) Publish(_ context.Context, e kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Ingest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body)))
	return rec
}

func TestIngestQueuesEvent(t *testing.T) {
	p := &fakeProducer{}
	h := New(publisher.New(p, "flights"))

	rec := post(h, `{"primary_key": "a", "fields": {"body": "delayed flight"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp ingestion.IngestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, ingestion.IngestResponse{PrimaryKey: "a", Status: ingestion.StatusQueued}, resp)

	require.Len(t, p.events, 1)
	assert.Equal(t, "a", p.events[0].Key)
	assert.Equal(t, "flights", p.events[0].Headers[kafka.HeaderIndex])
	ev, ok := p.events[0].Value.(ingestion.IngestEvent)
	require.True(t, ok)
	assert.Equal(t, "delayed flight", ev.Fields["body"])
	assert.False(t, ev.IngestedAt.IsZero())
}

func TestIngestRejectsBadInput(t *testing.T) {
	p := &fakeProducer{}
	h := New(publisher.New(p, "flights"))

	assert.Equal(t, http.StatusBadRequest, post(h, `{not json`).Code)

	rec := post(h, `{"fields": {"body": "x"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body.Fields, "primary_key")
	assert.Empty(t, p.events)
}

func TestIngestPublishFailure(t *testing.T) {
	h := New(publisher.New(&fakeProducer{err: errors.New("broker down")}, "flights"))
	assert.Equal(t, http.StatusServiceUnavailable, post(h, `{"primary_key": "a", "fields": {"body": "x"}}`).Code)
}
