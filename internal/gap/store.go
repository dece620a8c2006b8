package gap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrGapNotFound indicates the gap does not exist.
var ErrGapNotFound = errors.New("gap not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	// The partial unique index on fingerprint (WHERE status <> 'closed')
	// makes re-analysis idempotent: an unchanged finding refreshes its
	// open row instead of inserting a duplicate, and a closed gap does not
	// block the same finding from reopening later.
	upsertGapSQL = `
		INSERT INTO gaps
			(id, fingerprint, category, description, evidence, framework_ref, target,
			 factors, priority_score, priority, effort_class, owner_suggested,
			 deadline, status, detected_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (fingerprint) WHERE status <> 'closed'
		DO UPDATE SET
			description    = EXCLUDED.description,
			evidence       = EXCLUDED.evidence,
			factors        = EXCLUDED.factors,
			priority_score = EXCLUDED.priority_score,
			priority       = EXCLUDED.priority,
			deadline       = EXCLUDED.deadline,
			detected_at    = EXCLUDED.detected_at,
			updated_at     = EXCLUDED.updated_at
		RETURNING id, status, created_at`

	selectGapSQL = `
		SELECT id, fingerprint, category, description, evidence, framework_ref, target,
		       factors, priority_score, priority, effort_class, owner_suggested,
		       deadline, status, detected_at, created_at, updated_at
		FROM gaps`

	listOpenSQL = selectGapSQL + `
		WHERE status <> 'closed'
		ORDER BY priority_score DESC, fingerprint
		LIMIT $1`

	getGapSQL = selectGapSQL + ` WHERE id = $1`

	updateStatusSQL = `UPDATE gaps SET status = $2, updated_at = $3 WHERE id = $1`

	upsertProposalSQL = `
		INSERT INTO proposals (id, gap_id, work_plan, resource_estimate, success_criteria, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (gap_id) DO UPDATE SET
			work_plan         = EXCLUDED.work_plan,
			resource_estimate = EXCLUDED.resource_estimate,
			success_criteria  = EXCLUDED.success_criteria,
			created_at        = EXCLUDED.created_at`

	getProposalSQL = `
		SELECT id, gap_id, work_plan, resource_estimate, success_criteria, created_at
		FROM proposals
		WHERE gap_id = $1`
)

// Store persists gaps and proposals in PostgreSQL.
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

// Upsert inserts a finding or refreshes the open row with the same
// fingerprint. The gap's ID, Status, and CreatedAt are overwritten with the
// persisted row's values, so a refreshed finding keeps its original identity
// and any status a human has already moved it to.
func (s *Store) Upsert(ctx context.Context, g *Gap) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	factors, err := json.Marshal(g.Factors)
	if err != nil {
		return fmt.Errorf("encoding factors: %w", err)
	}

	now := time.Now().UTC()
	err = s.db.QueryRow(ctx, upsertGapSQL,
		g.ID, g.Fingerprint, g.Category, g.Description, g.Evidence, g.FrameworkRef, g.Target,
		factors, g.PriorityScore, g.Priority, g.EffortClass, g.OwnerSuggested,
		g.Deadline, g.Status, g.DetectedAt, now,
	).Scan(&g.ID, &g.Status, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting gap: %w", err)
	}
	g.UpdatedAt = now
	return nil
}

// Get loads a gap by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Gap, error) {
	g, err := scanGap(s.db.QueryRow(ctx, getGapSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("gap %s: %w", id, ErrGapNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting gap %s: %w", id, err)
	}
	return g, nil
}

// ListOpen returns non-closed gaps ordered by priority score descending.
func (s *Store) ListOpen(ctx context.Context, limit int) ([]Gap, error) {
	rows, err := s.db.Query(ctx, listOpenSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing gaps: %w", err)
	}
	defer rows.Close()

	var gaps []Gap
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gap: %w", err)
		}
		gaps = append(gaps, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gaps: %w", err)
	}
	return gaps, nil
}

// UpdateStatus transitions a gap through its lifecycle. Invalid transitions
// are rejected before touching the database.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) error {
	g, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := ValidateTransition(g.Status, to); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, updateStatusSQL, id, to, time.Now().UTC()); err != nil {
		return fmt.Errorf("updating gap status: %w", err)
	}
	s.logger.Info("gap status changed", "gap_id", id, "from", g.Status, "to", to)
	return nil
}

// SaveProposal stores the remediation plan for a gap, replacing any earlier
// plan from a previous analysis run.
func (s *Store) SaveProposal(ctx context.Context, p *Proposal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	workPlan, err := json.Marshal(p.WorkPlan)
	if err != nil {
		return fmt.Errorf("encoding work plan: %w", err)
	}
	if _, err := s.db.Exec(ctx, upsertProposalSQL,
		p.ID, p.GapID, workPlan, p.ResourceEstimate, p.SuccessCriteria, p.CreatedAt); err != nil {
		return fmt.Errorf("upserting proposal: %w", err)
	}
	return nil
}

// GetProposal loads the proposal for a gap.
func (s *Store) GetProposal(ctx context.Context, gapID uuid.UUID) (*Proposal, error) {
	var p Proposal
	var workPlan []byte
	err := s.db.QueryRow(ctx, getProposalSQL, gapID).
		Scan(&p.ID, &p.GapID, &workPlan, &p.ResourceEstimate, &p.SuccessCriteria, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("proposal for gap %s: %w", gapID, ErrGapNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting proposal: %w", err)
	}
	if err := json.Unmarshal(workPlan, &p.WorkPlan); err != nil {
		return nil, fmt.Errorf("decoding work plan: %w", err)
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGap(row rowScanner) (*Gap, error) {
	var g Gap
	var factors []byte
	err := row.Scan(&g.ID, &g.Fingerprint, &g.Category, &g.Description, &g.Evidence,
		&g.FrameworkRef, &g.Target, &factors, &g.PriorityScore, &g.Priority,
		&g.EffortClass, &g.OwnerSuggested, &g.Deadline, &g.Status,
		&g.DetectedAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(factors, &g.Factors); err != nil {
		return nil, fmt.Errorf("decoding factors: %w", err)
	}
	return &g, nil
}
