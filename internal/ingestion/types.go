// Package ingestion defines the request/response types and the Kafka event
// schema of the document ingestion pipeline.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
type IngestRequest struct {
	PrimaryKey string            `json:"primary_key"`
	Fields     map[string]string `json:"fields"`
}

// IngestResponse is returned once a document has been queued for indexing.
type IngestResponse struct {
	PrimaryKey string `json:"primary_key"`
	Status     string `json:"status"`
}

// StatusQueued means the document is on the ingest topic but not yet
// searchable.
const StatusQueued = "QUEUED"

// IngestEvent is the Kafka message payload for one document.
type IngestEvent struct {
	PrimaryKey string            `json:"primary_key"`
	Fields     map[string]string `json:"fields"`
	IngestedAt time.Time         `json:"ingested_at"`
}
