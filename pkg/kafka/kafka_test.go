package kafka

import (
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaders(t *testing.T) {
	msg, err := encode(Event{
		Key:     "doc-1",
		Value:   map[string]string{"body": "gate change"},
		Headers: map[string]string{HeaderIndex: "flights", "content-type": "application/json"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("doc-1"), msg.Key)
	assert.JSONEq(t, `{"body":"gate change"}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "content-type", msg.Headers[0].Key, "headers are sorted")

	msg.Partition, msg.Offset = 3, 42
	got := decode(msg)
	assert.Equal(t, "flights", got.Headers[HeaderIndex])
	assert.Equal(t, 3, got.Partition)
	assert.Equal(t, int64(42), got.Offset)

	assert.Nil(t, decode(kafka.Message{Value: []byte("{}")}).Headers)
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode(Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeJSONMarksDecodeErrors(t *testing.T) {
	type event struct {
		PrimaryKey string `json:"primary_key"`
	}
	got, err := DecodeJSON[event]([]byte(`{"primary_key":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "a", got.PrimaryKey)

	_, err = DecodeJSON[event]([]byte("{"))
	assert.True(t, errors.Is(err, apperrors.ErrDecode))
	assert.True(t, apperrors.Permanent(err))
}
