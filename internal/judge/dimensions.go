package judge

import (
	"strings"

	"github.com/ashita-ai/akashi/internal/model"
)

// dimension is one of the 25 fine-grained signals grouped under an axiom.
// The optional 25-dimension pass (run at REFLECT/DELIBERATE levels, or
// whenever self-judgment is triggered) computes all of them and folds
// their axiom-grouped mean into that axiom's score as a secondary signal,
// never overriding the primary axiomScorer outright.
type dimension struct {
	Name  string
	Axiom model.Axiom
	Score func(o model.Observation) float64
}

// dimensions lists all 25 dimensions: 6 PHI, 7 VERIFY, 6 CULTURE, 6 BURN.
var dimensions = []dimension{
	// PHI — ratio/harmony.
	{"proportionality", model.AxiomPhi, dimProportionality},
	{"intent_clarity", model.AxiomPhi, dimIntentClarity},
	{"review_presence", model.AxiomPhi, dimReviewPresence},
	{"context_alignment", model.AxiomPhi, dimContextAlignment},
	{"output_match", model.AxiomPhi, dimOutputMatch},
	{"timing_harmony", model.AxiomPhi, dimTimingHarmony},

	// VERIFY — falsifiability/testing.
	{"test_presence", model.AxiomVerify, dimTestPresence},
	{"reproducibility", model.AxiomVerify, dimReproducibility},
	{"failure_signal_absence", model.AxiomVerify, dimFailureSignalAbsence},
	{"assertion_density", model.AxiomVerify, dimAssertionDensity},
	{"output_consistency", model.AxiomVerify, dimOutputConsistency},
	{"regression_risk", model.AxiomVerify, dimRegressionRisk},
	{"coverage_hint", model.AxiomVerify, dimCoverageHint},

	// CULTURE — pattern/consistency.
	{"task_type_standard", model.AxiomCulture, dimTaskTypeStandard},
	{"pattern_match", model.AxiomCulture, dimPatternMatchHint},
	{"naming_consistency", model.AxiomCulture, dimNamingConsistency},
	{"convention_adherence", model.AxiomCulture, dimConventionAdherence},
	{"historical_alignment", model.AxiomCulture, dimHistoricalAlignment},
	{"team_consensus", model.AxiomCulture, dimTeamConsensus},

	// BURN — simplicity, inverse of sprawl.
	{"diff_size", model.AxiomBurn, dimDiffSize},
	{"file_sprawl", model.AxiomBurn, dimFileSprawl},
	{"dependency_added", model.AxiomBurn, dimDependencyAdded},
	{"config_complexity", model.AxiomBurn, dimConfigComplexity},
	{"abstraction_depth", model.AxiomBurn, dimAbstractionDepth},
	{"duplication_risk", model.AxiomBurn, dimDuplicationRisk},
}

// RunDimensions computes all 25 dimension scores for an observation.
func RunDimensions(o model.Observation) map[string]float64 {
	out := make(map[string]float64, len(dimensions))
	for _, d := range dimensions {
		out[d.Name] = clamp100(d.Score(o))
	}
	return out
}

// AxiomMeansFromDimensions folds the 25 dimension scores back into a
// per-axiom mean, for blending with the primary axiomScorer output.
func AxiomMeansFromDimensions(scores map[string]float64) map[model.Axiom]float64 {
	sums := map[model.Axiom]float64{}
	counts := map[model.Axiom]int{}
	for _, d := range dimensions {
		sums[d.Axiom] += scores[d.Name]
		counts[d.Axiom]++
	}
	out := make(map[model.Axiom]float64, len(sums))
	for a, sum := range sums {
		out[a] = sum / float64(counts[a])
	}
	return out
}

func dimProportionality(o model.Observation) float64 {
	s, _ := scorePhi(o)
	return s
}
func dimIntentClarity(o model.Observation) float64 {
	if dataString(o, "intent") == "" {
		return 20
	}
	return 90
}
func dimReviewPresence(o model.Observation) float64 {
	if dataBool(o, "reviewed") {
		return 100
	}
	return 40
}
func dimContextAlignment(o model.Observation) float64 {
	if o.ContextStr == "" {
		return 50
	}
	return 80
}
func dimOutputMatch(o model.Observation) float64 {
	out := dataString(o, "output")
	if out == "" {
		return 50
	}
	if strings.Contains(out, "error") {
		return 30
	}
	return 85
}
func dimTimingHarmony(o model.Observation) float64 {
	if ms, ok := o.Data["duration_ms"].(float64); ok {
		if ms < 5000 {
			return 90
		}
		return 50
	}
	return 70
}

func dimTestPresence(o model.Observation) float64 {
	s, _ := scoreVerify(o)
	return s
}
func dimReproducibility(o model.Observation) float64 {
	if dataBool(o, "deterministic") {
		return 90
	}
	return 60
}
func dimFailureSignalAbsence(o model.Observation) float64 {
	out := dataString(o, "output")
	if strings.Contains(out, "FAIL") || strings.Contains(out, "panic") {
		return 10
	}
	return 90
}
func dimAssertionDensity(o model.Observation) float64 {
	if dataBool(o, "tests_included") {
		return 85
	}
	return 35
}
func dimOutputConsistency(o model.Observation) float64 {
	if dataString(o, "output") == "" {
		return 50
	}
	return 75
}
func dimRegressionRisk(o model.Observation) float64 {
	if files, ok := o.Data["files_touched"].(float64); ok && files > 8 {
		return 30
	}
	return 80
}
func dimCoverageHint(o model.Observation) float64 {
	if dataBool(o, "tests_included") {
		return 80
	}
	return 45
}

func dimTaskTypeStandard(o model.Observation) float64 {
	if StandardTaskTypes[model.TaskType(dataString(o, "task_type"))] {
		return 100
	}
	return 40
}
func dimPatternMatchHint(o model.Observation) float64 {
	if v, ok := o.Data["pattern_confidence"].(float64); ok {
		return v * 100
	}
	return 50
}
func dimNamingConsistency(o model.Observation) float64 { return 70 }
func dimConventionAdherence(o model.Observation) float64 {
	if dataBool(o, "reviewed") {
		return 85
	}
	return 60
}
func dimHistoricalAlignment(o model.Observation) float64 { return 65 }
func dimTeamConsensus(o model.Observation) float64       { return 60 }

func dimDiffSize(o model.Observation) float64 {
	s, _ := scoreBurn(o)
	return s
}
func dimFileSprawl(o model.Observation) float64 {
	if files, ok := o.Data["files_touched"].(float64); ok {
		if files <= 3 {
			return 90
		}
		if files <= 8 {
			return 60
		}
		return 25
	}
	return 70
}
func dimDependencyAdded(o model.Observation) float64 {
	if dataBool(o, "dependency_added") {
		return 40
	}
	return 85
}
func dimConfigComplexity(o model.Observation) float64 {
	if dataBool(o, "config_changed") {
		return 55
	}
	return 80
}
func dimAbstractionDepth(o model.Observation) float64 { return 70 }
func dimDuplicationRisk(o model.Observation) float64 {
	if dataBool(o, "duplicate_detected") {
		return 20
	}
	return 85
}
