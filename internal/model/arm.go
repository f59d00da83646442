package model

import (
	"math"
	"time"
)

// ArmKind distinguishes the three flavors of Thompson-sampled arm.
type ArmKind string

const (
	ArmPattern   ArmKind = "pattern"
	ArmHeuristic ArmKind = "heuristic"
	ArmDog       ArmKind = "dog"
)

// Arm is a named target of Thompson Sampling: Beta(Alpha, Beta) posterior
// with priors (1,1). Alpha and Beta are monotonically non-decreasing.
type Arm struct {
	ArmID     string    `json:"arm_id"`
	Kind      ArmKind   `json:"kind"`
	Label     string    `json:"label"`
	Alpha     float64   `json:"alpha"`
	Beta      float64   `json:"beta"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewArm returns an Arm with the Beta(1,1) uniform prior.
func NewArm(kind ArmKind, label string) Arm {
	return Arm{ArmID: string(kind) + ":" + label, Kind: kind, Label: label, Alpha: 1, Beta: 1}
}

// ExpectedValue is the posterior mean alpha/(alpha+beta).
func (a Arm) ExpectedValue() float64 {
	return a.Alpha / (a.Alpha + a.Beta)
}

// Uncertainty is the Beta distribution's standard deviation:
// sqrt(alpha*beta / ((alpha+beta)^2 * (alpha+beta+1))).
func (a Arm) Uncertainty() float64 {
	sum := a.Alpha + a.Beta
	return math.Sqrt(a.Alpha * a.Beta / (sum * sum * (sum + 1)))
}

// QTableEntry is the persisted snapshot of one Q-Table row, used to
// reload the Learner's in-memory table at WARM boot.
type QTableEntry struct {
	StateKey  string    `json:"state_key"`
	Action    string    `json:"action"` // dog/heuristic name
	Value     float64   `json:"value"`
	Episodes  int       `json:"episodes"`
	UpdatedAt time.Time `json:"updated_at"`
}
