package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// searchTimeout bounds vector search queries so a slow index cannot block a
// turn indefinitely.
const searchTimeout = 10 * time.Second

// upsertDocumentSQL replaces a document and its vector in one statement, so
// the old vector is only gone once the new one is written. Re-ingestion
// bumps the version.
const upsertDocumentSQL = `INSERT INTO documents (id, content, embedding, metadata, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, 1, now(), now())
	ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding,
		metadata = EXCLUDED.metadata,
		version = documents.version + 1,
		updated_at = now()`

const documentCols = `id, content, metadata, version, created_at, updated_at`

// Store manages knowledge documents with vector search backed by
// PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       querier
	embedder *Embedder
	logger   *slog.Logger
}

// NewStore creates a Store.
func NewStore(db querier, embedder *Embedder, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// Upsert embeds a document's content and writes it to the index.
// Existing documents are re-ingested as a new version; the vector swap is
// atomic per document because it happens in a single statement.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document ID is required")
	}
	if doc.Content == "" {
		return fmt.Errorf("document %q has no content", doc.ID)
	}

	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	embedding := pgvector.NewVector(vec)
	if _, err := s.db.Exec(ctx, upsertDocumentSQL, doc.ID, doc.Content, &embedding, metadataJSON); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("indexed document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search returns the topK nearest documents to the query vector, optionally
// restricted by exact-match metadata filters.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding := pgvector.NewVector(vector)

	var rows pgx.Rows
	var err error
	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		rows, err = s.db.Query(queryCtx,
			`SELECT `+documentCols+`, 1 - (embedding <=> $1) AS similarity
			FROM documents WHERE metadata @> $2
			ORDER BY embedding <=> $1 LIMIT $3`,
			&embedding, filterJSON, topK)
	} else {
		rows, err = s.db.Query(queryCtx,
			`SELECT `+documentCols+`, 1 - (embedding <=> $1) AS similarity
			FROM documents ORDER BY embedding <=> $1 LIMIT $2`,
			&embedding, topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	return s.scanResults(rows)
}

// KeywordSearch returns the topK documents ranked by PostgreSQL full-text
// relevance for the query. Used as the second leg of hybrid retrieval.
func (s *Store) KeywordSearch(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.db.Query(queryCtx,
		`SELECT `+documentCols+`,
			ts_rank(to_tsvector('english', content), websearch_to_tsquery('english', $1)) AS rank
		FROM documents
		WHERE to_tsvector('english', content) @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC LIMIT $2`,
		query, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	return s.scanResults(rows)
}

// ListByFilter returns documents matching the metadata filter without any
// relevance computation. The gap engine uses it to enumerate the current
// state of documentation per framework.
func (s *Store) ListByFilter(ctx context.Context, filter map[string]string, limit int) ([]Document, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+documentCols+` FROM documents
		WHERE metadata @> $1 ORDER BY updated_at DESC LIMIT $2`,
		filterJSON, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document from the index.
// Only used on explicit un-ingestion; normal re-ingestion versions in place.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("deleting document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

func (s *Store) scanResults(rows pgx.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var (
			doc          Document
			metadataJSON []byte
			score        float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &doc.Version,
			&doc.CreatedAt, &doc.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			s.logger.Warn("unparseable document metadata", "document_id", doc.ID, "error", err)
		}
		results = append(results, Result{Document: doc, Score: score})
	}
	return results, rows.Err()
}

func scanDocument(rows pgx.Rows) (Document, error) {
	var (
		doc          Document
		metadataJSON []byte
	)
	if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &doc.Version,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, fmt.Errorf("scanning document row: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
		return Document{}, fmt.Errorf("parsing metadata for %q: %w", doc.ID, err)
	}
	return doc, nil
}
