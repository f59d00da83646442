// Package perceive normalizes raw host hook payloads into the canonical
// model.Observation the Judge consumes. Pure transform, no I/O.
package perceive

import (
	"fmt"

	"github.com/ashita-ai/akashi/internal/model"
)

// realityBySource is the fixed source -> reality dimension table.
// Sources absent from the table classify as model.RealityCynic.
var realityBySource = map[model.HookSource]model.RealityDimension{
	model.SourcePostToolUse:      model.RealityCode,
	model.SourcePreToolUse:       model.RealityCode,
	model.SourceUserPromptSubmit: model.RealityHuman,
	model.SourceStop:             model.RealityHuman,
	model.SourceSessionStart:     model.RealityHuman,
	model.SourceSessionEnd:       model.RealityHuman,
	model.SourceError:            model.RealityCynic,
	model.SourceNotification:     model.RealityCynic,
	model.SourceSubagentStart:    model.RealityCynic,
	model.SourceSubagentStop:     model.RealityCynic,
}

// Classify maps a hook source to its reality dimension.
func Classify(source model.HookSource) model.RealityDimension {
	if r, ok := realityBySource[source]; ok {
		return r
	}
	return model.RealityCynic
}

// judgmentSkippedSources lists sources that carry no decision for the
// Judge to score; they update session bookkeeping only.
var judgmentSkippedSources = map[model.HookSource]bool{
	model.SourceSessionStart: true,
	model.SourceSessionEnd:   true,
	model.SourceNotification: true,
}

// Perceive sanitizes a raw hook event into a canonical Observation: large
// fields are truncated, the event is classified to a reality dimension,
// and the Judge level is picked from the event's shape.
func Perceive(raw model.RawHookEvent) model.Observation {
	data := truncateFields(raw.Data)

	return model.Observation{
		Source:      raw.Source,
		Reality:     Classify(raw.Source),
		Data:        data,
		ContextStr:  contextString(raw.Context),
		RunJudgment: !judgmentSkippedSources[raw.Source],
		Level:       levelFor(raw.Source, data),
		UserID:      raw.UserID,
		SessionID:   raw.SessionID,
	}
}

// truncateFields clips every field named in truncatedFields to
// model.MaxFieldLength, appending model.TruncationMarker. Non-string
// values and fields not in the list pass through unchanged. The input map
// is not mutated; a shallow copy is returned.
func truncateFields(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, field := range truncatedFieldNames {
		s, ok := out[field].(string)
		if !ok || len(s) <= model.MaxFieldLength {
			continue
		}
		out[field] = s[:model.MaxFieldLength] + model.TruncationMarker
	}
	return out
}

// truncatedFieldNames mirrors model.truncatedFields; duplicated here
// because that slice is unexported to its package.
var truncatedFieldNames = []string{"content", "diff", "output", "file_content", "prompt"}

// contextString flattens the raw context map to a single string for the
// Judge's PHI axiom, which reasons over free text rather than structure.
func contextString(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	s := ""
	for k, v := range ctx {
		s += fmt.Sprintf("%s=%v ", k, v)
	}
	return s
}

// levelFor picks the Judge's work budget for an observation. Error events
// and self-modification events get DELIBERATE (external model consultation
// allowed); PreToolUse, PostToolUse and UserPromptSubmit events get
// REFLECT, whatever their diff size; everything else is REFLEX, targeting
// sub-10ms tabular scoring only.
func levelFor(source model.HookSource, data map[string]any) model.JudgeLevel {
	if source == model.SourceError {
		return model.LevelDeliberate
	}
	if b, ok := data["self_modifying"].(bool); ok && b {
		return model.LevelDeliberate
	}
	switch source {
	case model.SourcePostToolUse, model.SourcePreToolUse, model.SourceUserPromptSubmit:
		return model.LevelReflect
	default:
		return model.LevelReflex
	}
}
