package judge

import "github.com/ashita-ai/akashi/internal/model"

// applySelfJudgment runs the full 25-dimension pass (if not already run)
// and the RiskValidator when an observation indicates the kernel is
// modifying its own code. A critical risk lowers the verdict by exactly
// one step (never more — self-judgment is advisory-severe, not fatal).
func (j *Judge) applySelfJudgment(o model.Observation, jd model.Judgment) model.Judgment {
	if jd.DimensionScores == nil {
		jd.DimensionScores = RunDimensions(o)
	}

	validator := j.RiskValidator
	if validator == nil {
		validator = NoopRiskValidator{}
	}
	risks := validator.AssessRisks(o)
	if len(risks) == 0 {
		return jd
	}

	hasCritical := false
	for _, r := range risks {
		jd.Weaknesses = append(jd.Weaknesses, "self-judgment: "+r.Name+": "+r.Detail)
		if r.Critical {
			hasCritical = true
		}
	}
	if hasCritical {
		jd.Verdict = oneStepMoreSevere(jd.Verdict)
	}
	return jd
}

var verdictOrder = []model.Verdict{model.VerdictHowl, model.VerdictWag, model.VerdictGrowl, model.VerdictBark}

func oneStepMoreSevere(v model.Verdict) model.Verdict {
	for i, cur := range verdictOrder {
		if cur == v {
			if i+1 < len(verdictOrder) {
				return verdictOrder[i+1]
			}
			return cur
		}
	}
	return v
}
