package model

import "time"

// EScoreSnapshot captures a point-in-time composite "experience score" for
// a user, with seven dimension sub-scores. Retention follows the 24/7/365
// schedule: hourly for 24h, then daily for 7d, then weekly for 365d, then
// deleted (see storage.CleanupEScoreHistory).
type EScoreSnapshot struct {
	SnapshotID    string             `json:"snapshot_id"`
	UserID        string             `json:"user_id"`
	EScore        float64            `json:"e_score"`
	Dimensions    [7]float64         `json:"dimensions"`
	TriggerEvent  string             `json:"trigger_event"`
	Delta         float64            `json:"delta"`
	CreatedAt     time.Time          `json:"created_at"`
}

// EScoreDimensionNames labels the seven EScoreSnapshot.Dimensions slots.
var EScoreDimensionNames = [7]string{
	"judgment_quality", "feedback_alignment", "pattern_mastery",
	"chain_integrity", "exploration_balance", "refinement_rate", "stability",
}
