package model

import "time"

// BootMode is the Session Orchestrator's selected startup path.
type BootMode string

const (
	BootCold BootMode = "COLD" // first boot ever, no profile
	BootWarm BootMode = "WARM" // prior sessions exist
	BootSafe BootMode = "SAFE" // Store unavailable; degraded, local-only
)

// SessionSnapshot records one host session's lifecycle: boot mode,
// accumulated counters, and the handoff summary written for the next
// awakening.
type SessionSnapshot struct {
	SessionID     string     `json:"session_id"`
	UserID        string     `json:"user_id"`
	BootMode      BootMode   `json:"boot_mode"`
	Degraded      bool       `json:"degraded"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	PromptCount   int        `json:"prompt_count"`
	JudgmentCount int        `json:"judgment_count"`
	Handoff       *Handoff   `json:"handoff,omitempty"`
}

// Handoff is the cross-session summary persisted to
// ~/.cynic/last-session.json at session end.
type Handoff struct {
	SessionEndTime  time.Time `json:"sessionEndTime"`
	DurationMS      int64     `json:"duration"`
	PromptCount     int       `json:"promptCount"`
	Trend           string    `json:"trend"`
	Summary         string    `json:"summary"`
	FilesModified   []string  `json:"filesModified"`
	UnresolvedErrors []string `json:"unresolvedErrors"`
	Reflections     []string `json:"reflections"`
}

// Guidance is the file-based side channel carrying the last judgment
// summary to the next hook invocation, written atomically to
// ~/.cynic/guidance.json.
type Guidance struct {
	StateKey   string    `json:"state_key"`
	Verdict    Verdict   `json:"verdict"`
	QScore     float64   `json:"q_score"`
	Confidence float64   `json:"confidence"`
	Reality    RealityDimension `json:"reality"`
	DogVotes   map[string]float64 `json:"dog_votes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// GuidanceStaleness is the age beyond which consumers must treat
// guidance.json as absent.
const GuidanceStaleness = 24 * time.Hour

// Stale reports whether this guidance record is older than GuidanceStaleness
// relative to now.
func (g Guidance) Stale(now time.Time) bool {
	return now.Sub(g.Timestamp) > GuidanceStaleness
}
