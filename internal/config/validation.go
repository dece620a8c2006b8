package config

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for configuration validation.
// Wrapped with fmt.Errorf("%w: details", ErrXxx) and checked via errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidWeights indicates a weight set is out of range or does not
	// sum to 1.
	ErrInvalidWeights = errors.New("invalid weights")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidTokenBudget indicates the context token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid context token budget")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// weightSumTolerance allows for float accumulation error when checking that
// a weight set sums to 1.
const weightSumTolerance = 1e-9

// Validate checks configuration invariants.
// Returns the first violation found, wrapped around a sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: %d (want 1-50)", ErrInvalidTopK, c.TopK)
	}
	if c.ContextTokenBudget < 100 || c.ContextTokenBudget > 200_000 {
		return fmt.Errorf("%w: %d (want 100-200000)", ErrInvalidTokenBudget, c.ContextTokenBudget)
	}

	if c.AgentTimeoutSec < 1 || c.AgentTimeoutSec > 600 {
		return fmt.Errorf("%w: agent_timeout_sec=%d (want 1-600)", ErrInvalidTimeout, c.AgentTimeoutSec)
	}
	if c.TurnTimeoutSec < c.AgentTimeoutSec {
		return fmt.Errorf("%w: turn_timeout_sec=%d is below agent_timeout_sec=%d",
			ErrInvalidTimeout, c.TurnTimeoutSec, c.AgentTimeoutSec)
	}

	if err := validateWeightPair("rerank", c.RerankVectorWeight, c.RerankLLMWeight); err != nil {
		return err
	}
	if err := validateWeightSet("gap", []float64{
		c.GapRiskWeight, c.GapComplianceWeight, c.GapBusinessWeight,
		c.GapEffortWeight, c.GapFrequencyWeight,
	}); err != nil {
		return err
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}

	return nil
}

func validateWeightPair(name string, a, b float64) error {
	return validateWeightSet(name, []float64{a, b})
}

func validateWeightSet(name string, weights []float64) error {
	sum := 0.0
	for _, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: %s weight %v out of [0,1]", ErrInvalidWeights, name, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: %s weights sum to %v, want 1", ErrInvalidWeights, name, sum)
	}
	return nil
}
