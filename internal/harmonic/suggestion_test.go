package harmonic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/model"
)

// TestObserveAction_FollowedWithinWindow is the implicit-feedback seed
// scenario: a Judge suggests "run tests", the user runs pytest a few
// seconds later, and the kernel should correlate the two as followed
// without the caller pre-classifying anything.
func TestObserveAction_FollowedWithinWindow(t *testing.T) {
	store := newFakeStore()
	l := newTestLoop(store)
	l.Suggestions = NewSuggestionTracker(60 * time.Second)

	l.RecordSuggestion(Suggestion{Action: "run tests"})

	f, matched, err := l.ObserveAction(context.Background(), "Bash: pytest")
	require.NoError(t, err)
	require.True(t, matched)

	require.NotNil(t, f.ImplicitKind)
	assert.Equal(t, model.SignalFollowed, *f.ImplicitKind)
	assert.InDelta(t, 0.7, f.Confidence, 1e-9)
	assert.InDelta(t, 0.35, f.Reward, 1e-9)
	assert.False(t, f.Applied)
}

// TestObserveAction_OppositeWhenNegated checks that an observed action
// that overlaps with the suggestion but carries a negation word reads
// as opposite rather than followed.
func TestObserveAction_OppositeWhenNegated(t *testing.T) {
	l := newTestLoop(newFakeStore())
	l.Suggestions = NewSuggestionTracker(60 * time.Second)

	l.RecordSuggestion(Suggestion{Action: "run tests"})

	f, matched, err := l.ObserveAction(context.Background(), "skip tests")
	require.NoError(t, err)
	require.True(t, matched)
	require.NotNil(t, f.ImplicitKind)
	assert.Equal(t, model.SignalOpposite, *f.ImplicitKind)
}

// TestObserveAction_NoPendingSuggestion confirms an observed action with
// nothing recently suggested does not fabricate feedback.
func TestObserveAction_NoPendingSuggestion(t *testing.T) {
	l := newTestLoop(newFakeStore())
	l.Suggestions = NewSuggestionTracker(60 * time.Second)

	_, matched, err := l.ObserveAction(context.Background(), "Bash: pytest")
	require.NoError(t, err)
	assert.False(t, matched)
}

// TestObserveAction_OutsideWindowIsIgnored checks that a suggestion
// older than the correlation window no longer matches, and instead
// surfaces through SweepIgnoredSuggestions.
func TestObserveAction_OutsideWindowIsIgnored(t *testing.T) {
	store := newFakeStore()
	l := newTestLoop(store)
	l.Suggestions = NewSuggestionTracker(60 * time.Second)

	l.Suggestions.Record(Suggestion{Action: "run tests", At: l.now().Add(-90 * time.Second)})

	_, matched, err := l.ObserveAction(context.Background(), "Bash: pytest")
	require.NoError(t, err)
	assert.False(t, matched, "a suggestion older than the window must not correlate")

	n, err := l.SweepIgnoredSuggestions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	unapplied, err := store.FindUnappliedFeedback(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, unapplied, 1)
	require.NotNil(t, unapplied[0].ImplicitKind)
	assert.Equal(t, model.SignalIgnored, *unapplied[0].ImplicitKind)
}
