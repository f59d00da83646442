package perceive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/akashi/internal/model"
)

func TestClassify_FixedTable(t *testing.T) {
	cases := map[model.HookSource]model.RealityDimension{
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
	for source, want := range cases {
		assert.Equal(t, want, Classify(source), "source=%s", source)
	}
}

func TestClassify_UnknownSourceDefaultsToCynic(t *testing.T) {
	assert.Equal(t, model.RealityCynic, Classify(model.HookSource("SomethingNew")))
}

func TestPerceive_TruncatesLargeFields(t *testing.T) {
	long := strings.Repeat("x", model.MaxFieldLength+50)
	raw := model.RawHookEvent{
		Source: model.SourcePostToolUse,
		Data:   map[string]any{"content": long, "other": "short"},
	}
	o := Perceive(raw)
	content, ok := o.Data["content"].(string)
	if !ok {
		t.Fatalf("content not a string: %v", o.Data["content"])
	}
	assert.True(t, strings.HasSuffix(content, model.TruncationMarker))
	assert.Equal(t, model.MaxFieldLength+len(model.TruncationMarker), len(content))
	assert.Equal(t, "short", o.Data["other"])
}

func TestPerceive_ShortFieldsUntouched(t *testing.T) {
	raw := model.RawHookEvent{
		Source: model.SourcePostToolUse,
		Data:   map[string]any{"content": "short enough"},
	}
	o := Perceive(raw)
	assert.Equal(t, "short enough", o.Data["content"])
}

func TestPerceive_DoesNotMutateInput(t *testing.T) {
	long := strings.Repeat("y", model.MaxFieldLength+10)
	data := map[string]any{"diff": long}
	raw := model.RawHookEvent{Source: model.SourcePreToolUse, Data: data}
	_ = Perceive(raw)
	assert.Equal(t, long, data["diff"], "Perceive must not mutate the caller's map")
}

func TestPerceive_RunJudgmentSkippedForBookkeepingSources(t *testing.T) {
	for _, s := range []model.HookSource{model.SourceSessionStart, model.SourceSessionEnd, model.SourceNotification} {
		o := Perceive(model.RawHookEvent{Source: s})
		assert.False(t, o.RunJudgment, "source=%s", s)
	}
}

func TestPerceive_RunJudgmentSetForDecisionSources(t *testing.T) {
	for _, s := range []model.HookSource{model.SourcePostToolUse, model.SourcePreToolUse, model.SourceUserPromptSubmit, model.SourceStop, model.SourceError} {
		o := Perceive(model.RawHookEvent{Source: s})
		assert.True(t, o.RunJudgment, "source=%s", s)
	}
}

func TestPerceive_LevelEscalatesForErrorsAndSelfModification(t *testing.T) {
	o := Perceive(model.RawHookEvent{Source: model.SourceError})
	assert.Equal(t, model.LevelDeliberate, o.Level)

	o = Perceive(model.RawHookEvent{
		Source: model.SourceNotification,
		Data:   map[string]any{"self_modifying": true},
	})
	assert.Equal(t, model.LevelDeliberate, o.Level)
}

func TestPerceive_LevelReflectForToolAndPromptEvents(t *testing.T) {
	for _, s := range []model.HookSource{model.SourcePostToolUse, model.SourcePreToolUse, model.SourceUserPromptSubmit} {
		o := Perceive(model.RawHookEvent{Source: s})
		assert.Equal(t, model.LevelReflect, o.Level, "source=%s", s)
	}
}

func TestPerceive_LevelReflexDefault(t *testing.T) {
	o := Perceive(model.RawHookEvent{Source: model.SourceSubagentStop})
	assert.Equal(t, model.LevelReflex, o.Level)
}

func TestPerceive_CarriesUserAndSessionIDs(t *testing.T) {
	userID, sessionID := "usr_1", "ses_1"
	o := Perceive(model.RawHookEvent{Source: model.SourceStop, UserID: &userID, SessionID: &sessionID})
	assert.Equal(t, &userID, o.UserID)
	assert.Equal(t, &sessionID, o.SessionID)
}

func TestPerceive_ContextStringFlattensMap(t *testing.T) {
	o := Perceive(model.RawHookEvent{
		Source:  model.SourceStop,
		Context: map[string]any{"task": "refactor"},
	})
	assert.Contains(t, o.ContextStr, "task=refactor")
}
