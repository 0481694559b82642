// Package detect implements the weighted-rule framework detection engine and
// provider ranking. This is part of the Functional Core - Detect and
// RankProviders are pure and deterministic for a given input.
package detect

import (
	"github.com/artpar/launchpad/internal/core/domain"
)

// =============================================================================
// Rules
// =============================================================================

// Condition contributes Weight to a rule's score when the signal is present.
type Condition struct {
	Signal string
	Weight float64
}

// Rule maps weighted signal conditions to a framework recommendation.
// Rules are static configuration, loaded at process start, never mutated.
type Rule struct {
	ID        string
	Framework string
	// Conditions add their weight to the score when satisfied.
	Conditions []Condition
	// Exclusions disqualify the rule outright when any is satisfied,
	// regardless of accumulated score.
	Exclusions []string
	// Threshold is the minimum accumulated score for the rule to fire.
	Threshold float64
	// Recommendation produced when this rule wins.
	Provider domain.ProviderType
	Build    domain.BuildConfiguration
}

// =============================================================================
// Results
// =============================================================================

// SuitabilityTier buckets a provider candidate's score for display.
type SuitabilityTier string

const (
	TierExcellent SuitabilityTier = "excellent"
	TierGood      SuitabilityTier = "good"
	TierFair      SuitabilityTier = "fair"
	TierPoor      SuitabilityTier = "poor"
)

// CostTier is the rough monthly cost band of running on a provider.
type CostTier string

const (
	CostLow    CostTier = "low"
	CostMedium CostTier = "medium"
	CostHigh   CostTier = "high"
)

// ProviderCandidate is one ranked provider with its score breakdown rationale.
type ProviderCandidate struct {
	Provider  domain.ProviderType `json:"provider"`
	Score     float64             `json:"score"`
	Tier      SuitabilityTier     `json:"tier"`
	CostTier  CostTier            `json:"cost_tier"`
	Rationale string              `json:"rationale"`
}

// Result is the outcome of one detection run. It is never mutated after
// creation and may be cached keyed by (repository id, commit sha).
type Result struct {
	Framework  string                    `json:"framework"`
	Confidence float64                   `json:"confidence"`
	RuleID     string                    `json:"rule_id,omitempty"`
	Build      domain.BuildConfiguration `json:"build_config"`
	Needs      Needs                     `json:"needs"`
	Providers  []ProviderCandidate       `json:"providers"`
	Caveats    []string                  `json:"caveats,omitempty"`
}

// Needs captures the infrastructure requirements inferred from the signals.
type Needs struct {
	Database    bool     `json:"database"`
	LongRunning bool     `json:"long_running"`
	StaticOnly  bool     `json:"static_only"`
	CostBias    CostTier `json:"cost_bias,omitempty"` // preferred cost band, empty = no preference
}
