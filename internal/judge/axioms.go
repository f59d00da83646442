package judge

import (
	"strings"

	"github.com/ashita-ai/akashi/internal/model"
)

// axiomScorer computes one axiom's [0,100] score for an observation and
// returns any weaknesses it found: a flat list of named factors, each
// contributing a fixed point value, summed into a capped score.
type axiomScorer func(o model.Observation) (score float64, weaknesses []string)

// StandardTaskTypes are task_type values the Judge recognizes from its
// taxonomy. Matching a standard type is itself evidence of CULTURE
// (consistency with the kernel's own vocabulary).
var StandardTaskTypes = map[model.TaskType]bool{
	model.TaskDebug:       true,
	model.TaskTest:        true,
	model.TaskDeployment:  true,
	model.TaskExploration: true,
	model.TaskCodeChange:  true,
	model.TaskAnalysis:    true,
}

func dataString(o model.Observation, key string) string {
	v, ok := o.Data[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func dataBool(o model.Observation, key string) bool {
	v, ok := o.Data[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// scorePhi measures ratio/harmony: how proportionate the change is to its
// stated intent. A tool call with output but no input context, or a huge
// diff for a one-line stated intent, loses points here.
func scorePhi(o model.Observation) (float64, []string) {
	var score float64
	var weak []string

	diff := dataString(o, "diff")
	intent := dataString(o, "intent")

	switch {
	case intent != "" && len(diff) > 0:
		score += 40
	case intent != "":
		score += 20
	default:
		weak = append(weak, "phi: no stated intent")
	}

	// Harmony: a diff whose size is wildly disproportionate to a short
	// intent description loses points; this rewards well-scoped changes.
	if intent != "" && len(diff) > 0 {
		ratio := float64(len(diff)) / float64(len(intent)+1)
		switch {
		case ratio <= 20:
			score += 35
		case ratio <= 80:
			score += 20
		default:
			weak = append(weak, "phi: diff disproportionate to stated intent")
			score += 5
		}
	}

	if dataBool(o, "reviewed") {
		score += 25
	}

	return clamp100(score), weak
}

// scoreVerify measures falsifiability: was this checked against tests or
// a reproducible signal before being accepted?
func scoreVerify(o model.Observation) (float64, []string) {
	var score float64
	var weak []string

	output := dataString(o, "output")
	toolName := strings.ToLower(dataString(o, "tool_name"))

	if strings.Contains(toolName, "test") || strings.Contains(output, "PASS") || strings.Contains(output, "ok ") {
		score += 40
	} else {
		weak = append(weak, "verify: no test signal observed")
	}

	if dataBool(o, "tests_included") {
		score += 35
	} else {
		weak = append(weak, "verify: no tests included with change")
	}

	if strings.Contains(output, "FAIL") || strings.Contains(output, "error") {
		weak = append(weak, "verify: failure signal present in output")
	} else {
		score += 25
	}

	return clamp100(score), weak
}

// scoreCulture measures pattern/consistency: does this match a known,
// previously-observed good pattern for this task type?
func scoreCulture(o model.Observation, patternMatch float64) (float64, []string) {
	var score float64
	var weak []string

	if StandardTaskTypes[model.TaskType(dataString(o, "task_type"))] {
		score += 20
	} else {
		weak = append(weak, "culture: non-standard task type")
	}

	// patternMatch is the best matching Pattern's confidence, supplied by
	// the caller (Learner lookup); 0 if no pattern matched.
	score += patternMatch * 80

	return clamp100(score), weak
}

// scoreBurn measures simplicity, the inverse of sprawl: smaller, more
// targeted diffs and fewer touched files score higher.
func scoreBurn(o model.Observation) (float64, []string) {
	var score = 100.0
	var weak []string

	diff := dataString(o, "diff")
	switch {
	case len(diff) == 0:
		// No diff to penalize (e.g. a read-only tool call).
	case len(diff) < 500:
		// No penalty.
	case len(diff) < 2000:
		score -= 25
		weak = append(weak, "burn: moderately large diff")
	default:
		score -= 55
		weak = append(weak, "burn: large diff suggests scope creep")
	}

	if filesTouched, ok := o.Data["files_touched"].(float64); ok {
		switch {
		case filesTouched <= 3:
		case filesTouched <= 8:
			score -= 15
		default:
			score -= 35
			weak = append(weak, "burn: many files touched in one change")
		}
	}

	return clamp100(score), weak
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
