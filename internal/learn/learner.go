package learn

import (
	"github.com/ashita-ai/akashi/internal/model"
)

// Learner bundles the Q-Table and Thompson Sampler with the optional
// analytic trackers. The core tables are never nil; the trackers are
// advisory and nil-safe — none of them can veto a Judge verdict.
type Learner struct {
	QTable  *QTable
	Sampler *Sampler

	// Optional dependencies (nil = disabled).
	Antifragility  *AntifragilityTracker
	Temporal       *TemporalSpectrum
	MeasureSwitch  *MeasureSwitch
	NonCommutative *NonCommutativeTracker
}

// New returns a Learner with fresh, empty Q-Table and Sampler and no
// optional trackers enabled. Callers attach trackers individually.
func New() *Learner {
	return &Learner{QTable: NewQTable(), Sampler: NewSampler()}
}

// ChooseAction picks a dog/heuristic for a state by Thompson Sampling
// over the candidate arms. It applies no ε-greedy exploration step:
// Epsilon(episodes) is not consulted here.
func (l *Learner) ChooseAction(kind model.ArmKind, candidates []string) string {
	return l.Sampler.Select(kind, candidates)
}

// ApplyFeedback folds one feedback event into the Q-Table and the
// relevant arm's posterior, returning the updated entries for the caller
// to persist. nextMaxActions lists the candidate actions for the
// resulting state, used for the TD(0) bootstrap target.
func (l *Learner) ApplyFeedback(stateKey model.StateKey, action string, reward, learningRate float64, nextMaxActions []string) (model.QTableEntry, model.Arm) {
	key := stateKey.String()
	nextMax := l.QTable.MaxValue(key, nextMaxActions)
	entry := l.QTable.Update(key, action, reward, learningRate, nextMax)

	arm := l.Sampler.Record(model.ArmDog, action, reward > 0)
	return entry, arm
}

// ObserveOptional feeds a reward sample and outcome into whichever
// optional trackers are enabled, folding in hour-of-day and stress
// context the caller determines. Safe to call with all trackers nil.
func (l *Learner) ObserveOptional(reward float64, outcome bool, underStress bool, hour int, neutralProbability float64) {
	if l.Antifragility != nil {
		l.Antifragility.Observe(reward, underStress)
	}
	if l.Temporal != nil {
		l.Temporal.Record(hour, reward)
	}
	if l.MeasureSwitch != nil {
		l.MeasureSwitch.Record(neutralProbability, outcome)
	}
}
