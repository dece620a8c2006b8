// Package knowledge manages the organization's security knowledge base:
// documents with vector embeddings stored in PostgreSQL + pgvector, and the
// embedding providers that produce those vectors.
package knowledge

import "time"

// Source type values for the metadata source_type field.
const (
	// SourceTypeDocument represents indexed security documentation.
	SourceTypeDocument = "document"

	// SourceTypeConversation represents persisted chat exchanges indexed
	// for long-term recall.
	SourceTypeConversation = "conversation"
)

// Document status values.
const (
	StatusActive     = "active"
	StatusDraft      = "draft"
	StatusSuperseded = "superseded"
)

// Metadata carries the structured attributes of a document.
// Serialized as JSONB; exact-match filters address individual keys.
type Metadata struct {
	SourceType     string    `json:"source_type,omitempty"`
	Framework      string    `json:"framework,omitempty"`
	ControlIDs     []string  `json:"control_ids,omitempty"`
	DocType        string    `json:"doc_type,omitempty"`
	Status         string    `json:"status,omitempty"`
	LastUpdated    time.Time `json:"last_updated,omitzero"`
	NextReviewDate time.Time `json:"next_review_date,omitzero"`
}

// Document represents a knowledge document.
// Documents are immutable once indexed; re-ingestion bumps Version and
// replaces the stored vector in the same statement.
type Document struct {
	ID        string
	Content   string
	Metadata  Metadata
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result represents a single search result with its relevance score.
// For vector search the score is cosine similarity; for keyword search it is
// the full-text rank. Scores from different legs are only comparable after
// rank fusion.
type Result struct {
	Document Document
	Score    float64
}
