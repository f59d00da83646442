package harmonic

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ashita-ai/akashi/internal/model"
)

// suggestionWindow is the default correlation window between a
// suggested action and an observed action that follows it.
const suggestionWindow = 60 * time.Second

// maxTrackedSuggestions bounds SuggestionTracker's memory the same way
// mcp.recallTracker bounds itself.
const maxTrackedSuggestions = 50

// Suggestion is a Judge-originated "suggested next action" awaiting
// correlation against whatever the user does next.
type Suggestion struct {
	Action     string
	JudgmentID *string
	StateKey   *string
	Arm        *string
	At         time.Time

	consumed bool
}

// SuggestionTracker holds a short, bounded history of suggested actions
// and correlates each against the next observed action within its
// window, deriving a followed/opposite/ignored implicit signal. This is
// the kernel-side half of implicit feedback: the caller no longer has
// to pre-classify the signal itself.
type SuggestionTracker struct {
	mu      sync.Mutex
	pending []Suggestion
	window  time.Duration
}

// NewSuggestionTracker builds a tracker with the given correlation
// window, defaulting to suggestionWindow when window <= 0.
func NewSuggestionTracker(window time.Duration) *SuggestionTracker {
	if window <= 0 {
		window = suggestionWindow
	}
	return &SuggestionTracker{window: window}
}

// Record notes a new suggested action.
func (t *SuggestionTracker) Record(s Suggestion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.consumed = false
	t.pending = append(t.pending, s)
	if len(t.pending) > maxTrackedSuggestions {
		t.pending = append([]Suggestion(nil), t.pending[len(t.pending)-maxTrackedSuggestions:]...)
	}
}

// Observe correlates an observed action against the most recent
// unconsumed suggestion still within its window, consuming it so the
// same suggestion is never reported twice. ok is false when nothing is
// pending in-window.
func (t *SuggestionTracker) Observe(action string, now time.Time) (Suggestion, model.ImplicitSignal, float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.pending) - 1; i >= 0; i-- {
		s := t.pending[i]
		if s.consumed || now.Sub(s.At) > t.window {
			continue
		}
		t.pending[i].consumed = true
		signal, confidence := correlate(s.Action, action)
		return s, signal, confidence, true
	}
	return Suggestion{}, "", 0, false
}

// SweepExpired drops and returns suggestions whose window elapsed with
// no correlated action, so a caller can record each as ignored exactly
// once.
func (t *SuggestionTracker) SweepExpired(now time.Time) []Suggestion {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Suggestion
	kept := t.pending[:0]
	for _, s := range t.pending {
		if !s.consumed && now.Sub(s.At) > t.window {
			expired = append(expired, s)
			continue
		}
		if !s.consumed {
			kept = append(kept, s)
		}
	}
	t.pending = kept
	return expired
}

// RecordSuggestion stores a Judge-derived suggested next action for
// later correlation against an observed action. A no-op if the loop has
// no tracker configured.
func (l *Loop) RecordSuggestion(s Suggestion) {
	if l.Suggestions == nil {
		return
	}
	if s.At.IsZero() {
		s.At = l.now()
	}
	l.Suggestions.Record(s)
}

// ObserveAction correlates an observed action against the most recent
// pending suggestion and, on a match, ingests the resulting implicit
// feedback automatically. matched is false when no suggestion was
// in-window to correlate against.
func (l *Loop) ObserveAction(ctx context.Context, action string) (f model.Feedback, matched bool, err error) {
	if l.Suggestions == nil || action == "" {
		return model.Feedback{}, false, nil
	}
	s, signal, confidence, ok := l.Suggestions.Observe(action, l.now())
	if !ok {
		return model.Feedback{}, false, nil
	}
	f, err = l.IngestImplicit(ctx, ImplicitFeedbackInput{
		JudgmentID: s.JudgmentID,
		Signal:     signal,
		Confidence: confidence,
		StateKey:   s.StateKey,
		Arm:        s.Arm,
	})
	if err != nil {
		return model.Feedback{}, false, err
	}
	return f, true, nil
}

// SweepIgnoredSuggestions ingests an implicit "ignored" feedback row for
// every pending suggestion whose correlation window elapsed with no
// observed action, so the kernel learns from silence as well as action.
func (l *Loop) SweepIgnoredSuggestions(ctx context.Context) (int, error) {
	if l.Suggestions == nil {
		return 0, nil
	}
	expired := l.Suggestions.SweepExpired(l.now())
	for _, s := range expired {
		if _, err := l.IngestImplicit(ctx, ImplicitFeedbackInput{
			JudgmentID: s.JudgmentID,
			Signal:     model.SignalIgnored,
			Confidence: 0.5,
			StateKey:   s.StateKey,
			Arm:        s.Arm,
		}); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

// actionGroups maps a suggestion's domain keywords to command
// substrings that count as carrying it out, for cases where the
// suggested and observed text share no vocabulary at all (e.g.
// suggestion "run tests" vs. observed action "Bash: pytest").
var actionGroups = []struct {
	keywords []string
	commands []string
}{
	{[]string{"test", "tests", "testing"}, []string{"pytest", "go test", "npm test", "yarn test", "jest", "rspec", "mvn test", "gradle test", "ctest"}},
	{[]string{"lint", "linting"}, []string{"eslint", "golangci-lint", "flake8", "pylint", "ruff"}},
	{[]string{"format", "formatting"}, []string{"gofmt", "prettier", "black", "rustfmt"}},
	{[]string{"build", "building", "compile"}, []string{"go build", "make", "npm run build", "mvn package", "cargo build"}},
	{[]string{"commit", "committing"}, []string{"git commit"}},
}

var negationWords = map[string]bool{
	"not": true, "dont": true, "skip": true, "skipped": true,
	"ignore": true, "ignored": true, "revert": true, "reverted": true,
	"cancel": true, "cancelled": true, "no": true, "instead": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "and": true,
	"for": true, "this": true, "that": true, "with": true, "of": true,
}

// correlate derives an implicit signal and confidence from a suggested
// action's text and a subsequently observed action's text. Direct token
// overlap reads as followed (or opposite, if the observed text carries a
// negation word); failing that, a shared domain keyword/command group
// still reads as followed; anything else reads as ignored.
func correlate(suggested, observed string) (model.ImplicitSignal, float64) {
	suggestedTokens := tokenize(suggested)
	observedTokens := tokenize(observed)
	observedLower := strings.ToLower(observed)

	negated := false
	observedSet := make(map[string]bool, len(observedTokens))
	for _, tok := range observedTokens {
		observedSet[tok] = true
		if negationWords[tok] {
			negated = true
		}
	}

	overlap := 0
	for _, tok := range suggestedTokens {
		if observedSet[tok] {
			overlap++
		}
	}
	if len(suggestedTokens) > 0 {
		ratio := float64(overlap) / float64(len(suggestedTokens))
		if ratio >= 0.5 {
			confidence := 0.5 + 0.3*ratio
			if negated {
				return model.SignalOpposite, confidence
			}
			return model.SignalFollowed, confidence
		}
	}

	for _, group := range actionGroups {
		if !hasAny(suggestedTokens, group.keywords) {
			continue
		}
		for _, cmd := range group.commands {
			if strings.Contains(observedLower, cmd) {
				if negated {
					return model.SignalOpposite, 0.6
				}
				return model.SignalFollowed, 0.7
			}
		}
	}

	return model.SignalIgnored, 0.3
}

func hasAny(tokens, keywords []string) bool {
	for _, tok := range tokens {
		for _, k := range keywords {
			if tok == k {
				return true
			}
		}
	}
	return false
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}
