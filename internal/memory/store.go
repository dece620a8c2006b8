package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of pgx operations the store needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	insertSessionSQL = `
		INSERT INTO sessions (id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $3)`

	selectSessionSQL = `
		SELECT id, title, created_at, updated_at
		FROM sessions
		WHERE id = $1`

	insertTurnSQL = `
		INSERT INTO conversation_turns
			(id, session_id, role, content, intent, entities, agents_used, retrieved_docs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	touchSessionSQL = `UPDATE sessions SET updated_at = $2 WHERE id = $1`

	// Recent turns are fetched newest-first and reversed in Go so the
	// window comes back chronological.
	recentTurnsSQL = `
		SELECT id, session_id, role, content, intent, entities, agents_used, retrieved_docs, created_at
		FROM conversation_turns
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
)

// Store persists sessions and turns in PostgreSQL.
type Store struct {
	db     querier
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(db querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, title string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{ID: uuid.New(), Title: title, CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.Exec(ctx, insertSessionSQL, sess.ID, sess.Title, now); err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return sess, nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, selectSessionSQL, id).
		Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting session %s: %w", id, err)
	}
	return &sess, nil
}

// AppendTurn inserts a turn and bumps the session's updated_at.
func (s *Store) AppendTurn(ctx context.Context, turn *Turn) error {
	_, err := s.db.Exec(ctx, insertTurnSQL,
		turn.ID, turn.SessionID, turn.Role, turn.Content, turn.Intent,
		turn.Entities, turn.AgentsUsed, turn.RetrievedDocs, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	if _, err := s.db.Exec(ctx, touchSessionSQL, turn.SessionID, turn.CreatedAt); err != nil {
		// The turn itself is safe; staleness of updated_at only delays eviction.
		s.logger.Warn("touching session failed", "session_id", turn.SessionID, "error", err)
	}
	return nil
}

// RecentTurns returns up to limit most recent turns in chronological order.
func (s *Store) RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]Turn, error) {
	rows, err := s.db.Query(ctx, recentTurnsSQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.Intent,
			&t.Entities, &t.AgentsUsed, &t.RetrievedDocs, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
