package harmonic

import (
	"context"
	"fmt"

	"github.com/ashita-ai/akashi/internal/model"
)

// ExplicitFeedbackInput is the request shape for the /feedback endpoint.
type ExplicitFeedbackInput struct {
	JudgmentID *string
	Rating     *int
	Outcome    *model.FeedbackOutcome
	Reason     *string
	StateKey   *string
	Arm        *string
}

// IngestExplicit stores an explicit feedback row unapplied; its Q-Table
// and Thompson updates are deferred to the next learning-cycle sweep, so
// every feedback event is applied exactly once, in FIFO order.
func (l *Loop) IngestExplicit(ctx context.Context, in ExplicitFeedbackInput) (model.Feedback, error) {
	f := model.Feedback{
		JudgmentID: in.JudgmentID,
		SourceType: model.FeedbackSourceExplicit,
		Rating:     in.Rating,
		Outcome:    in.Outcome,
		Reason:     in.Reason,
		StateKey:   in.StateKey,
		Arm:        in.Arm,
		Confidence: 1.0,
	}
	f.Reward = explicitReward(f)

	created, err := l.Store.CreateFeedback(ctx, f)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("harmonic: ingest explicit feedback: %w", err)
	}
	return created, nil
}

// explicitReward maps a rating (1-5) or outcome enum to the [-1,1] reward
// scale; rating takes precedence when both are present.
func explicitReward(f model.Feedback) float64 {
	if f.Rating != nil {
		// Map 1..5 linearly onto [-1,1]: 1->-1, 3->0, 5->1.
		return (float64(*f.Rating) - 3) / 2
	}
	if f.Outcome != nil {
		switch *f.Outcome {
		case model.OutcomeCorrect:
			return 1
		case model.OutcomeIncorrect:
			return -1
		default:
			return 0
		}
	}
	return 0
}

// implicitWindowSignalWeight scales an implicit signal's magnitude before
// confidence weighting: followed/opposite carry the full 0.5 spec
// magnitude, ignored carries none.
func implicitWindowSignalWeight(signal model.ImplicitSignal) float64 {
	switch signal {
	case model.SignalFollowed:
		return 0.5
	case model.SignalOpposite:
		return -0.5
	default:
		return 0
	}
}

// ImplicitFeedbackInput is produced by an observer that watched the last
// N suggestions and detected how the user's next action related to one.
type ImplicitFeedbackInput struct {
	JudgmentID *string
	Signal     model.ImplicitSignal
	Confidence float64 // the observer's confidence in the detected signal
	StateKey   *string
	Arm        *string
}

// IngestImplicit stores an implicit feedback row scaled by the observer's
// detection confidence; like explicit feedback, its Q-Table and Thompson
// updates are deferred to the next learning-cycle sweep.
func (l *Loop) IngestImplicit(ctx context.Context, in ImplicitFeedbackInput) (model.Feedback, error) {
	signal := in.Signal
	f := model.Feedback{
		JudgmentID:   in.JudgmentID,
		SourceType:   model.FeedbackSourceImplicit,
		ImplicitKind: &signal,
		Confidence:   in.Confidence,
		StateKey:     in.StateKey,
		Arm:          in.Arm,
	}
	f.Reward = implicitWindowSignalWeight(signal) * in.Confidence

	created, err := l.Store.CreateFeedback(ctx, f)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("harmonic: ingest implicit feedback: %w", err)
	}
	return created, nil
}
