// Package gap implements the proactive gap detection and prioritization
// engine: it audits the knowledge base against per-framework baselines,
// scores findings deterministically, and generates remediation proposals
// for the highest priorities.
package gap

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category classifies what kind of deficiency a gap is.
type Category string

const (
	CategoryDocumentation Category = "documentation"
	CategoryControl       Category = "control"
	CategoryProcess       Category = "process"
	CategoryTechnology    Category = "technology"
)

// Status is the gap lifecycle. Gaps are never deleted, only transitioned,
// because findings are audit records.
type Status string

const (
	StatusOpen     Status = "open"
	StatusProposed Status = "proposed"
	StatusApproved Status = "approved"
	StatusClosed   Status = "closed"
)

// ErrInvalidTransition indicates a status change outside the
// open→proposed→approved→closed lifecycle.
var ErrInvalidTransition = errors.New("invalid gap status transition")

var transitions = map[Status]map[Status]bool{
	StatusOpen:     {StatusProposed: true, StatusClosed: true},
	StatusProposed: {StatusApproved: true, StatusClosed: true},
	StatusApproved: {StatusClosed: true},
	StatusClosed:   {},
}

// ValidateTransition checks a status change against the lifecycle.
func ValidateTransition(from, to Status) error {
	if !transitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Priority buckets a score for human consumption.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// Gap is one detected deficiency. Every gap traces to exactly one detection
// run via DetectedAt; Fingerprint deduplicates the same finding across runs.
type Gap struct {
	ID             uuid.UUID
	Fingerprint    string
	Category       Category
	Description    string
	Evidence       string
	FrameworkRef   string
	Target         string
	Factors        Factors
	PriorityScore  float64
	Priority       Priority
	EffortClass    string
	OwnerSuggested string
	Deadline       time.Time
	Status         Status
	DetectedAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Phase is one step of a proposal work plan.
type Phase struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DurationDays int    `json:"duration_days"`
}

// Proposal is the remediation plan for one gap. 1:1 with the gap; a
// re-analysis regenerates it.
type Proposal struct {
	ID               uuid.UUID
	GapID            uuid.UUID
	WorkPlan         []Phase
	ResourceEstimate string
	SuccessCriteria  []string
	CreatedAt        time.Time
}
