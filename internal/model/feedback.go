package model

import "time"

// FeedbackSourceType distinguishes how a Feedback row was produced.
type FeedbackSourceType string

const (
	FeedbackSourceExplicit FeedbackSourceType = "explicit"
	FeedbackSourceImplicit FeedbackSourceType = "implicit"
)

// FeedbackOutcome is the normalized outcome of one feedback event.
type FeedbackOutcome string

const (
	OutcomeCorrect   FeedbackOutcome = "correct"
	OutcomeIncorrect FeedbackOutcome = "incorrect"
	OutcomePartial   FeedbackOutcome = "partial"
)

// ImplicitSignal classifies how the user's next action related to a
// suggestion the kernel made.
type ImplicitSignal string

const (
	SignalFollowed ImplicitSignal = "followed"
	SignalOpposite ImplicitSignal = "opposite"
	SignalIgnored  ImplicitSignal = "ignored"
)

// Feedback unifies the explicit (1-5 rating or correct/incorrect/partial)
// and implicit (followed/opposite/ignored) feedback shapes into one
// schema, per the re-architecture note in spec §9: "multiple overlapping
// feedback shapes in source" become one row type with an optional
// judgment link.
type Feedback struct {
	FeedbackID    string              `json:"feedback_id"`
	JudgmentID    *string             `json:"judgment_id,omitempty"` // nullable: orphan feedback allowed
	SourceType    FeedbackSourceType  `json:"source_type"`
	Rating        *int                `json:"rating,omitempty"` // 1-5, explicit only
	Outcome       *FeedbackOutcome    `json:"outcome,omitempty"`
	ImplicitKind  *ImplicitSignal     `json:"implicit_kind,omitempty"`
	ActualScore   *float64            `json:"actual_score,omitempty"`
	Reason        *string             `json:"reason,omitempty"`
	SourceContext map[string]any      `json:"source_context,omitempty"`
	Confidence    float64             `json:"confidence"` // how sure the signal is (esp. implicit)
	Reward        float64             `json:"reward"`     // computed scalar in [-1,1]
	StateKey      *string             `json:"state_key,omitempty"`
	Arm           *string             `json:"arm,omitempty"`
	Applied       bool                `json:"applied"`
	CreatedAt     time.Time           `json:"created_at"`
}

// RewardSign returns +1 for a positive outcome, -1 for negative, 0 for
// partial/unknown. Used to drive Thompson alpha/beta increments.
func (f Feedback) RewardSign() int {
	if f.Outcome != nil {
		switch *f.Outcome {
		case OutcomeCorrect:
			return 1
		case OutcomeIncorrect:
			return -1
		default:
			return 0
		}
	}
	if f.ImplicitKind != nil {
		switch *f.ImplicitKind {
		case SignalFollowed:
			return 1
		case SignalOpposite:
			return -1
		default:
			return 0
		}
	}
	if f.Rating != nil {
		if *f.Rating >= 4 {
			return 1
		}
		if *f.Rating <= 2 {
			return -1
		}
	}
	return 0
}
