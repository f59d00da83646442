package model

// RealityDimension tags an event by the domain of reality it belongs to,
// shaping Q-Table state keys.
type RealityDimension string

const (
	RealityCode  RealityDimension = "CODE"
	RealityHuman RealityDimension = "HUMAN"
	RealityCynic RealityDimension = "CYNIC"
)

// HookSource enumerates the raw host hook event names the Perceiver
// accepts. Unknown sources are tolerated on the wire and classified as
// RealityCynic by default (see perceive.Classify).
type HookSource string

const (
	SourcePostToolUse      HookSource = "PostToolUse"
	SourcePreToolUse       HookSource = "PreToolUse"
	SourceUserPromptSubmit HookSource = "UserPromptSubmit"
	SourceStop             HookSource = "Stop"
	SourceSessionStart     HookSource = "SessionStart"
	SourceSessionEnd       HookSource = "SessionEnd"
	SourceError            HookSource = "Error"
	SourceNotification     HookSource = "Notification"
	SourceSubagentStart    HookSource = "SubagentStart"
	SourceSubagentStop     HookSource = "SubagentStop"
)

// JudgeLevel controls how much work the Judge is allowed to do for an
// observation.
type JudgeLevel string

const (
	LevelReflex     JudgeLevel = "REFLEX"     // tabular only, target <10ms
	LevelReflect    JudgeLevel = "REFLECT"    // Judge with self-refinement
	LevelDeliberate JudgeLevel = "DELIBERATE" // external model consultation allowed
)

// truncatedFields lists the raw payload keys that are length-limited by
// the Perceiver before they reach the Judge or the Store.
var truncatedFields = []string{"content", "diff", "output", "file_content", "prompt"}

// TruncationMarker is appended to any field truncated by the Perceiver.
const TruncationMarker = "...[truncated]"

// MaxFieldLength is the character limit the Perceiver enforces on large
// string fields.
const MaxFieldLength = 500

// RawHookEvent is the untrusted payload shape accepted from the host.
// Unknown fields are tolerated; only Source and Data are required.
type RawHookEvent struct {
	Source    HookSource     `json:"source"`
	Data      map[string]any `json:"data"`
	Context   map[string]any `json:"context,omitempty"`
	UserID    *string        `json:"user_id,omitempty"`
	SessionID *string        `json:"session_id,omitempty"`
}

// Observation is the canonical, sanitized form of a hook event, produced
// by the Perceiver and consumed by the Judge.
type Observation struct {
	Source       HookSource        `json:"source"`
	Reality      RealityDimension  `json:"reality"`
	Data         map[string]any    `json:"data"`
	ContextStr   string            `json:"context_str"`
	RunJudgment  bool              `json:"run_judgment"`
	Level        JudgeLevel        `json:"level"`
	UserID       *string           `json:"user_id,omitempty"`
	SessionID    *string           `json:"session_id,omitempty"`
}

// TaskType is the discrete task category used to shape Q-Table state keys.
type TaskType string

const (
	TaskDebug       TaskType = "debug"
	TaskTest        TaskType = "test"
	TaskDeployment  TaskType = "deployment"
	TaskExploration TaskType = "exploration"
	TaskCodeChange  TaskType = "code_change"
	TaskAnalysis    TaskType = "analysis"
)

// StateKey is the Q-Table state tuple (task_type, reality, active_dog).
type StateKey struct {
	TaskType  TaskType         `json:"task_type"`
	Reality   RealityDimension `json:"reality"`
	ActiveDog string           `json:"active_dog"`
}

// String renders the state key in the canonical "task|reality|dog" form
// used as a map key and as the persisted QTableEntry.StateKey column.
func (k StateKey) String() string {
	return string(k.TaskType) + "|" + string(k.Reality) + "|" + k.ActiveDog
}
