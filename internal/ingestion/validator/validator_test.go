package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     ingestion.IngestRequest
		invalid []string
	}{
		{
			name: "valid",
			req:  ingestion.IngestRequest{PrimaryKey: "a", Fields: map[string]string{"body": "text", "code": ""}},
		},
		{
			name:    "missing primary key",
			req:     ingestion.IngestRequest{Fields: map[string]string{"body": "text"}},
			invalid: []string{"primary_key"},
		},
		{
			name:    "oversized primary key",
			req:     ingestion.IngestRequest{PrimaryKey: strings.Repeat("k", maxPrimaryKeyLength+1), Fields: map[string]string{"body": "x"}},
			invalid: []string{"primary_key"},
		},
		{
			name:    "no fields",
			req:     ingestion.IngestRequest{PrimaryKey: "a"},
			invalid: []string{"fields"},
		},
		{
			name:    "separator in field name",
			req:     ingestion.IngestRequest{PrimaryKey: "a", Fields: map[string]string{"a/b": "x", "c:d": "y"}},
			invalid: []string{"fields.a/b", "fields.c:d"},
		},
		{
			name:    "segment row field name",
			req:     ingestion.IngestRequest{PrimaryKey: "a", Fields: map[string]string{"s0": "x", "status": "ok"}},
			invalid: []string{"fields.s0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req)
			if len(tt.invalid) == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			for _, f := range tt.invalid {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.invalid))
		})
	}
}
