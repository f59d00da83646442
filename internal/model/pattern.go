package model

import "time"

// TrendDirection summarizes how a pattern's confidence is moving.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Pattern is an upserted observation of a recurring situation. Confidence
// merges as max, capped at MaxConfidence. A pattern with MergedAt set is
// excluded from active queries — it has been folded into another pattern.
type Pattern struct {
	PatternID       string         `json:"pattern_id"`
	PatternType     string         `json:"pattern_type"`
	PatternKey      string         `json:"pattern_key"`
	OccurrenceCount int            `json:"occurrence_count"`
	Confidence      float64        `json:"confidence"`
	Strength        float64        `json:"strength"` // 0-100
	WeightModifier  float64        `json:"weight_modifier"`
	ThresholdDelta  float64        `json:"threshold_delta"`
	TrendDirection  TrendDirection `json:"trend_direction"`
	TrendVelocity   float64        `json:"trend_velocity"`

	// Promotion/demotion lifecycle. A pattern whose PromotedAt is non-nil is
	// a heuristic: it has graduated from "observed" to "trusted."
	PromotedAt *time.Time `json:"promoted_at,omitempty"`

	// Merge lifecycle.
	MergedAt *time.Time `json:"merged_at,omitempty"`
	ParentID *string    `json:"parent_id,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// IsActive reports whether the pattern should be considered by active
// queries (not merged away).
func (p Pattern) IsActive() bool {
	return p.MergedAt == nil
}

// IsHeuristic reports whether the pattern has been promoted.
func (p Pattern) IsHeuristic() bool {
	return p.PromotedAt != nil
}

// PromotionOccurrenceFloor is the minimum occurrence_count for promotion.
const PromotionOccurrenceFloor = 13

// PromotionConfidenceFloor is the minimum confidence for promotion.
const PromotionConfidenceFloor = 0.5

// PromotionOutcomeRatioFloor is the minimum arm outcome ratio for promotion,
// phi^-1.
const PromotionOutcomeRatioFloor = MaxConfidence

// DemotionOutcomeRatioCeiling is the outcome ratio below which a promoted
// pattern is demoted, phi^-2.
const DemotionOutcomeRatioCeiling = PhiInverseSquared

// EligibleForPromotion reports whether the pattern meets the occurrence and
// confidence floors for promotion. The caller still must check the arm's
// outcome ratio (not tracked on the Pattern itself).
func (p Pattern) EligibleForPromotion() bool {
	return !p.IsHeuristic() && p.IsActive() &&
		p.OccurrenceCount >= PromotionOccurrenceFloor &&
		p.Confidence >= PromotionConfidenceFloor
}
