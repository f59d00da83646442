// Package judge computes a Q-score for an observation using four axioms
// (PHI, VERIFY, CULTURE, BURN) and, optionally, 25 finer-grained
// dimensions. It never raises to its caller. Axiom scoring has no failure
// path of its own: this package never sets Judgment.FailedAxioms and never
// lowers confidence for a failed axiom.
package judge

import (
	"time"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// PatternLookup supplies the best-matching Pattern's confidence for an
// observation's task type, used as the CULTURE axiom's consistency
// signal. A nil PatternLookup is treated as "no pattern matched" (0).
type PatternLookup interface {
	BestMatchConfidence(taskType, patternKey string) float64
}

// RiskValidator runs the self-judgment risk pass when an observation
// indicates the kernel is modifying its own code. An injectable
// interface with a no-op default, so the risk pass can be swapped or
// disabled without touching callers.
type RiskValidator interface {
	AssessRisks(o model.Observation) []Risk
}

// Risk is one self-judgment finding.
type Risk struct {
	Name     string
	Critical bool
	Detail   string
}

// NoopRiskValidator finds no risks. It is the default when self-judgment
// detection is not needed.
type NoopRiskValidator struct{}

func (NoopRiskValidator) AssessRisks(model.Observation) []Risk { return nil }

// SelfRefinementMaxIterations bounds the self-refinement loop (spec K=2).
const SelfRefinementMaxIterations = 2

// RefinementTriggerQ is the Q-score below which self-refinement is
// attempted when the level allows it.
const RefinementTriggerQ = 60

// Judge computes judgments. The zero value is usable with defaults
// (no pattern lookup, no risk validator, equal axiom weights).
type Judge struct {
	Patterns       PatternLookup
	RiskValidator  RiskValidator
	WeightModifier model.WeightModifiers // nil = all-1.0
	Now            func() time.Time      // nil = time.Now
}

func (j *Judge) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Judge) weight(a model.Axiom) float64 {
	if j.WeightModifier == nil {
		return 1.0
	}
	if w, ok := j.WeightModifier[a]; ok {
		return w
	}
	return 1.0
}

// Score runs the full judge pipeline over an observation and returns a
// complete Judgment. level controls whether the 25-dimension pass and
// self-refinement are allowed to run (REFLEX skips them, to stay under the
// <10ms budget, except that a self-modification observation still gets the
// dimension pass from applySelfJudgment).
func (j *Judge) Score(o model.Observation) model.Judgment {
	patternConfidence := 0.0
	if j.Patterns != nil {
		patternConfidence = j.Patterns.BestMatchConfidence(dataString(o, "task_type"), dataString(o, "pattern_key"))
	}

	phiScore, phiWeak := scorePhi(o)
	verifyScore, verifyWeak := scoreVerify(o)
	cultureScore, cultureWeak := scoreCulture(o, patternConfidence)
	burnScore, burnWeak := scoreBurn(o)

	axiomScores := map[model.Axiom]float64{
		model.AxiomPhi:     phiScore,
		model.AxiomVerify:  verifyScore,
		model.AxiomCulture: cultureScore,
		model.AxiomBurn:    burnScore,
	}
	var weaknesses []string
	weaknesses = append(weaknesses, phiWeak...)
	weaknesses = append(weaknesses, verifyWeak...)
	weaknesses = append(weaknesses, cultureWeak...)
	weaknesses = append(weaknesses, burnWeak...)

	var dimScores map[string]float64
	if o.Level != model.LevelReflex {
		dimScores = RunDimensions(o)
		means := AxiomMeansFromDimensions(dimScores)
		// Blend the dimension-derived axiom mean in as a secondary signal,
		// weighted 30/70 against the primary axiomScorer — the primary
		// scorer stays authoritative, dimensions refine it.
		for a, mean := range means {
			axiomScores[a] = axiomScores[a]*0.7 + mean*0.3
		}
	}

	q := weightedMeanQ(axiomScores, j.WeightModifier)
	confidence := confidenceFor(axiomScores)
	verdict := model.QScoreForVerdict(q)

	content := dataString(o, "diff") + "|" + dataString(o, "output") + "|" + dataString(o, "intent")
	jd := model.Judgment{
		JudgmentID:      idgen.New(idgen.PrefixJudgment),
		UserID:          o.UserID,
		SessionID:       o.SessionID,
		ItemType:        string(o.Source),
		ItemContent:     content,
		ItemHash:        idgen.ContentHash(content),
		QScore:          q,
		Confidence:      confidence,
		Verdict:         verdict,
		AxiomScores:     axiomScores,
		DimensionScores: dimScores,
		Weaknesses:      weaknesses,
		Context:         o.Data,
		CreatedAt:       j.now(),
	}

	if o.Level != model.LevelReflex && (q < RefinementTriggerQ || verdict == model.VerdictGrowl || verdict == model.VerdictBark) {
		jd = j.refine(o, jd)
	}

	if isSelfModification(o) {
		jd = j.applySelfJudgment(o, jd)
	}

	return jd
}

// weightedMeanQ composes the axiom scores into a single Q-score using the
// Judge's per-axiom weight modifiers (default 1.0, i.e. equal weights).
func weightedMeanQ(axiomScores map[model.Axiom]float64, mods model.WeightModifiers) float64 {
	var sumW, sumWS float64
	for _, a := range model.Axioms {
		w := 1.0
		if mods != nil {
			if m, ok := mods[a]; ok {
				w = m
			}
		}
		sumW += w
		sumWS += w * axiomScores[a]
	}
	if sumW == 0 {
		return 0
	}
	return sumWS / sumW
}

// confidenceFor is min(mean_axiom_score/100, MaxConfidence).
func confidenceFor(axiomScores map[model.Axiom]float64) float64 {
	var sum float64
	for _, a := range model.Axioms {
		sum += axiomScores[a]
	}
	mean := sum / float64(len(model.Axioms)) / 100
	if mean > model.MaxConfidence {
		return model.MaxConfidence
	}
	return mean
}

func isSelfModification(o model.Observation) bool {
	return dataBool(o, "self_modifying") || dataString(o, "target_module") == "cynic_kernel"
}
