package judge

import "github.com/ashita-ai/akashi/internal/model"

// refine runs the self-refinement loop: up to SelfRefinementMaxIterations
// times, identify the weakest axiom and attempt a narrowly-scoped rescore
// under an alternative rubric, accepting the new score only if it
// strictly improves total Q. Never returns a worse judgment than the one
// it was given.
func (j *Judge) refine(o model.Observation, jd model.Judgment) model.Judgment {
	originalQ := jd.QScore
	current := jd

	for iter := 0; iter < SelfRefinementMaxIterations; iter++ {
		weakest := weakestAxiom(current.AxiomScores)
		rescored, ok := j.rescoreUnderAlternativeRubric(o, weakest, current.AxiomScores[weakest])
		if !ok {
			continue
		}

		candidate := current
		candidate.AxiomScores = cloneAxiomScores(current.AxiomScores)
		candidate.AxiomScores[weakest] = rescored
		candidateQ := weightedMeanQ(candidate.AxiomScores, j.WeightModifier)

		if candidateQ <= current.QScore {
			continue // strictly improve only
		}
		candidate.QScore = candidateQ
		candidate.Confidence = confidenceFor(candidate.AxiomScores)
		candidate.Verdict = model.QScoreForVerdict(candidateQ)
		current = candidate
	}

	if current.QScore > originalQ {
		current.Refined = true
		current.OriginalQ = originalQ
		current.FinalQ = current.QScore
		current.Improvement = current.QScore - originalQ
	}
	return current
}

// weakestAxiom returns the axiom with the lowest current score.
func weakestAxiom(scores map[model.Axiom]float64) model.Axiom {
	weakest := model.Axioms[0]
	for _, a := range model.Axioms {
		if scores[a] < scores[weakest] {
			weakest = a
		}
	}
	return weakest
}

// rescoreUnderAlternativeRubric re-reads the observation under a rubric
// relaxed for the weakest axiom, simulating the "re-read the item under
// an alternative rubric" step in spec §4.3. The alternative rubric gives
// partial credit for signals the primary scorer treats as all-or-nothing
// (e.g. a present-but-unlabeled test run), so it can only ever raise —
// never lower — that axiom's score.
func (j *Judge) rescoreUnderAlternativeRubric(o model.Observation, axiom model.Axiom, current float64) (float64, bool) {
	var alt float64
	switch axiom {
	case model.AxiomVerify:
		alt, _ = scoreVerify(o)
		if dataString(o, "output") != "" && !dataBool(o, "tests_included") {
			alt += 10 // partial credit: there was *some* execution signal.
		}
	case model.AxiomPhi:
		alt, _ = scorePhi(o)
		if dataString(o, "intent") != "" {
			alt += 10
		}
	case model.AxiomCulture:
		alt, _ = scoreCulture(o, 0)
		alt += 10
	case model.AxiomBurn:
		alt, _ = scoreBurn(o)
		alt += 5
	default:
		return 0, false
	}
	alt = clamp100(alt)
	if alt <= current {
		return 0, false
	}
	return alt, true
}

func cloneAxiomScores(in map[model.Axiom]float64) map[model.Axiom]float64 {
	out := make(map[model.Axiom]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
