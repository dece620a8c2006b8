// Package memory manages conversation state: a session-scoped short-term
// window of recent turns, idle-timeout session eviction, and long-term recall
// through the vector-indexed knowledge base.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wardenai/warden/internal/knowledge"
)

// ErrSessionNotFound indicates the session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Turn is one conversation message. Append-only; ordering within a session
// is preserved by serialized writes.
type Turn struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	Role          string // "user" | "assistant"
	Content       string
	Intent        string
	Entities      []string
	AgentsUsed    []string
	RetrievedDocs int
	CreatedAt     time.Time
}

// Session is a conversation session.
type Session struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionContext is the short-term view handed to classification and agent
// execution: the most recent turns in chronological order plus the distinct
// entities mentioned across them.
type SessionContext struct {
	SessionID uuid.UUID
	Turns     []Turn
	Entities  []string
}

// Transcript renders the window as role-prefixed lines for prompt inclusion.
func (c *SessionContext) Transcript() string {
	var b strings.Builder
	for _, t := range c.Turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String()
}

// TurnStore is the persistence contract the manager consumes.
// Store is the production implementation.
type TurnStore interface {
	CreateSession(ctx context.Context, title string) (*Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	AppendTurn(ctx context.Context, turn *Turn) error
	RecentTurns(ctx context.Context, sessionID uuid.UUID, limit int) ([]Turn, error)
}

// Archiver receives evicted session transcripts for long-term recall.
// knowledge.Store satisfies this.
type Archiver interface {
	Upsert(ctx context.Context, doc knowledge.Document) error
}

// Config contains the manager dependencies and tuning.
type Config struct {
	Store    TurnStore
	Archiver Archiver // nil disables long-term archival
	Logger   *slog.Logger

	// Window is the number of recent turns kept in the short-term context.
	Window int
	// IdleTimeout is how long a session may sit untouched before eviction.
	IdleTimeout time.Duration
}

type sessionState struct {
	mu         sync.Mutex
	turns      []Turn
	entities   []string
	seen       map[string]bool
	lastActive time.Time
}

// Manager owns session lifecycle and turn ordering. Writes to a given
// session are serialized through that session's lock so concurrent requests
// cannot interleave turn order; sessions are independent of each other.
type Manager struct {
	store    TurnStore
	archiver Archiver
	window   int
	idle     time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionState
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("turn store is required")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", cfg.Window)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:    cfg.Store,
		archiver: cfg.Archiver,
		window:   cfg.Window,
		idle:     cfg.IdleTimeout,
		logger:   cfg.Logger,
		sessions: make(map[uuid.UUID]*sessionState),
	}, nil
}

// CreateSession starts a new session.
func (m *Manager) CreateSession(ctx context.Context, title string) (*Session, error) {
	sess, err := m.store.CreateSession(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	m.mu.Lock()
	m.sessions[sess.ID] = newSessionState()
	m.mu.Unlock()
	m.logger.Debug("session created", "session_id", sess.ID)
	return sess, nil
}

// Append persists a turn and folds it into the session's short-term window.
// Calls for the same session are serialized; the persisted order matches the
// in-memory order.
func (m *Manager) Append(ctx context.Context, turn *Turn) error {
	if turn.SessionID == uuid.Nil {
		return errors.New("turn has no session id")
	}
	state, err := m.state(ctx, turn.SessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if err := m.store.AppendTurn(ctx, turn); err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}

	state.turns = append(state.turns, *turn)
	if len(state.turns) > m.window {
		state.turns = state.turns[len(state.turns)-m.window:]
	}
	for _, e := range turn.Entities {
		if !state.seen[e] {
			state.seen[e] = true
			state.entities = append(state.entities, e)
		}
	}
	state.lastActive = time.Now()
	return nil
}

// Context returns a copy of the session's short-term context. An evicted
// session is transparently rehydrated from the store.
func (m *Manager) Context(ctx context.Context, sessionID uuid.UUID) (*SessionContext, error) {
	state, err := m.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.lastActive = time.Now()

	out := &SessionContext{
		SessionID: sessionID,
		Turns:     make([]Turn, len(state.turns)),
		Entities:  make([]string, len(state.entities)),
	}
	copy(out.Turns, state.turns)
	copy(out.Entities, state.entities)
	return out, nil
}

// EvictIdle removes sessions untouched for longer than the idle timeout and
// archives their transcripts into the knowledge base for long-term recall.
// Returns the number of sessions evicted.
func (m *Manager) EvictIdle(ctx context.Context) int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-m.idle)

	m.mu.Lock()
	var stale []uuid.UUID
	for id, state := range m.sessions {
		state.mu.Lock()
		idle := state.lastActive.Before(cutoff)
		state.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	evicted := 0
	for _, id := range stale {
		m.mu.Lock()
		state, ok := m.sessions[id]
		if ok {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		if !ok {
			continue
		}
		evicted++
		m.archive(ctx, id, state)
		m.logger.Debug("session evicted", "session_id", id)
	}
	return evicted
}

// StartEvictionLoop runs EvictIdle on the given interval until ctx is done.
func (m *Manager) StartEvictionLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.EvictIdle(ctx); n > 0 {
					m.logger.Info("evicted idle sessions", "count", n)
				}
			}
		}
	}()
}

// archive indexes the evicted transcript so later sessions can recall it
// through retrieval.
func (m *Manager) archive(ctx context.Context, sessionID uuid.UUID, state *sessionState) {
	if m.archiver == nil {
		return
	}
	state.mu.Lock()
	snapshot := SessionContext{SessionID: sessionID, Turns: state.turns}
	state.mu.Unlock()
	if len(snapshot.Turns) == 0 {
		return
	}

	doc := knowledge.Document{
		ID:      "conversation-" + sessionID.String(),
		Content: snapshot.Transcript(),
		Metadata: knowledge.Metadata{
			SourceType:  knowledge.SourceTypeConversation,
			Status:      knowledge.StatusActive,
			LastUpdated: time.Now().UTC(),
		},
	}
	if err := m.archiver.Upsert(ctx, doc); err != nil {
		m.logger.Warn("archiving session transcript failed", "session_id", sessionID, "error", err)
	}
}

// state returns the in-memory state for a session, rehydrating the window
// from the store when the session was evicted or belongs to another process
// lifetime.
func (m *Manager) state(ctx context.Context, sessionID uuid.UUID) (*sessionState, error) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		return state, nil
	}

	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	turns, err := m.store.RecentTurns(ctx, sessionID, m.window)
	if err != nil {
		return nil, fmt.Errorf("rehydrating session %s: %w", sessionID, err)
	}

	state = newSessionState()
	state.turns = turns
	for _, t := range turns {
		for _, e := range t.Entities {
			if !state.seen[e] {
				state.seen[e] = true
				state.entities = append(state.entities, e)
			}
		}
	}

	m.mu.Lock()
	if existing, raced := m.sessions[sessionID]; raced {
		state = existing
	} else {
		m.sessions[sessionID] = state
	}
	m.mu.Unlock()
	return state, nil
}

func newSessionState() *sessionState {
	return &sessionState{seen: make(map[string]bool), lastActive: time.Now()}
}
