package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/akashi/internal/chain"
	"github.com/ashita-ai/akashi/internal/harmonic"
	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/judge"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/perceive"
	"github.com/ashita-ai/akashi/internal/storage"
)

// Handlers holds the dependencies every endpoint needs.
type Handlers struct {
	db     *storage.DB
	judge  *judge.Judge
	chain  *chain.Chain
	loop   *harmonic.Loop
	logger *slog.Logger
	pool   *workerPool

	guidancePath      string
	guidanceStaleness time.Duration
	perceiveTimeout   time.Duration
	healthTimeout     time.Duration

	startedAt time.Time
}

// HandlePerceive is the kernel's REFLEX path: decode, classify, score,
// and respond, all synchronously and in-process. Persistence (the Store
// write and any later chain sealing) happens off this path, on the
// bounded worker pool, so a hook's round trip is never blocked on disk
// I/O.
func (h *Handlers) HandlePerceive(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())

	var raw model.RawHookEvent
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	if raw.Source == "" {
		writeError(w, requestID, http.StatusBadRequest, "INVALID_INPUT", "source is required")
		return
	}

	obs := perceive.Perceive(raw)

	var jd model.Judgment
	if obs.RunJudgment {
		jd = h.judge.Score(obs)
	} else {
		jd = model.Judgment{Verdict: model.VerdictHowl, PersistenceSkipped: true}
	}
	jd.JudgmentID = idgen.New(idgen.PrefixJudgment)
	jd.UserID = obs.UserID
	jd.SessionID = obs.SessionID
	jd.CreatedAt = time.Now().UTC()

	writeJSON(w, http.StatusOK, model.APIResponse{
		Data: jd,
		Meta: model.ResponseMeta{RequestID: requestID, Timestamp: jd.CreatedAt},
	})

	if jd.PersistenceSkipped {
		return
	}

	// Async: persist the judgment, correlate implicit feedback, and
	// refresh the guidance snapshot. Runs after the response is already
	// on the wire.
	h.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout())
		defer cancel()

		h.correlateImplicitFeedback(ctx, obs, jd)

		if _, err := h.db.CreateJudgment(ctx, jd); err != nil {
			h.logger.Error("server: persist judgment", "error", err, "judgment_id", jd.JudgmentID)
			return
		}

		if err := writeGuidance(h.guidancePath, model.Guidance{
			Verdict:    jd.Verdict,
			QScore:     jd.QScore,
			Confidence: jd.Confidence,
			Reality:    obs.Reality,
			Timestamp:  jd.CreatedAt,
		}); err != nil {
			h.logger.Error("server: write guidance", "error", err)
		}
	})
}

func (h *Handlers) storeTimeout() time.Duration {
	if h.perceiveTimeout > 0 {
		return h.perceiveTimeout
	}
	return 2 * time.Second
}

// correlateImplicitFeedback feeds the Harmonic Loop's implicit-feedback
// detector: a judgment carrying a suggested next action (its first
// weakness) is recorded for later correlation, and a PostToolUse
// observation is checked against whatever suggestion is still pending,
// ingesting the resulting followed/opposite/ignored feedback on a match.
func (h *Handlers) correlateImplicitFeedback(ctx context.Context, obs model.Observation, jd model.Judgment) {
	if h.loop == nil {
		return
	}

	if action := postToolActionText(obs); action != "" {
		if _, matched, err := h.loop.ObserveAction(ctx, action); err != nil {
			h.logger.Error("server: observe implicit action", "error", err)
		} else if matched {
			h.loop.RecordPostToolEvent()
		}
	}

	if suggestion := suggestedActionText(jd); suggestion != "" {
		judgmentID := jd.JudgmentID
		h.loop.RecordSuggestion(harmonic.Suggestion{
			Action:     suggestion,
			JudgmentID: &judgmentID,
		})
	}
}

// postToolActionText renders a PostToolUse observation's tool call as a
// short "Tool: command" string for correlation against a pending
// suggestion. Returns "" for any other event source or a malformed
// payload.
func postToolActionText(obs model.Observation) string {
	if obs.Source != model.SourcePostToolUse {
		return ""
	}
	toolName, _ := obs.Data["tool_name"].(string)
	if toolName == "" {
		return ""
	}
	if input, ok := obs.Data["tool_input"].(map[string]any); ok {
		if command, ok := input["command"].(string); ok && command != "" {
			return toolName + ": " + command
		}
	}
	return toolName
}

// suggestedActionText returns the judgment's suggested next action, the
// first of its recorded weaknesses, or "" if it raised none.
func suggestedActionText(jd model.Judgment) string {
	if len(jd.Weaknesses) == 0 {
		return ""
	}
	return jd.Weaknesses[0]
}

// feedbackRequest is the wire shape for POST /feedback. Exactly one of
// the explicit fields (Rating or Outcome) or the implicit field (Signal)
// should be set; Signal takes precedence if both somehow are.
type feedbackRequest struct {
	JudgmentID *string                `json:"judgment_id,omitempty"`
	Rating     *int                   `json:"rating,omitempty"`
	Outcome    *model.FeedbackOutcome `json:"outcome,omitempty"`
	Reason     *string                `json:"reason,omitempty"`
	Signal     *model.ImplicitSignal  `json:"signal,omitempty"`
	Confidence *float64               `json:"confidence,omitempty"`
	StateKey   *string                `json:"state_key,omitempty"`
	Arm        *string                `json:"arm,omitempty"`
}

// HandleFeedback ingests one explicit or implicit feedback event. The
// Q-Table and Thompson updates it implies are deferred to the next
// learning-cycle sweep, not applied here.
func (h *Handlers) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	if h.loop == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "INTERNAL_ERROR", "harmonic loop not configured")
		return
	}

	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout())
	defer cancel()

	var (
		f   model.Feedback
		err error
	)
	switch {
	case req.Signal != nil:
		confidence := 1.0
		if req.Confidence != nil {
			confidence = *req.Confidence
		}
		f, err = h.loop.IngestImplicit(ctx, harmonic.ImplicitFeedbackInput{
			JudgmentID: req.JudgmentID,
			Signal:     *req.Signal,
			Confidence: confidence,
			StateKey:   req.StateKey,
			Arm:        req.Arm,
		})
	case req.Rating != nil || req.Outcome != nil:
		f, err = h.loop.IngestExplicit(ctx, harmonic.ExplicitFeedbackInput{
			JudgmentID: req.JudgmentID,
			Rating:     req.Rating,
			Outcome:    req.Outcome,
			Reason:     req.Reason,
			StateKey:   req.StateKey,
			Arm:        req.Arm,
		})
	default:
		writeError(w, requestID, http.StatusBadRequest, "INVALID_INPUT", "one of rating, outcome, or signal is required")
		return
	}
	if err != nil {
		h.logger.Error("server: ingest feedback", "error", err)
		writeError(w, requestID, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to record feedback")
		return
	}

	h.loop.RecordPostToolEvent()

	writeJSON(w, http.StatusAccepted, model.APIResponse{
		Data: f,
		Meta: model.ResponseMeta{RequestID: requestID, Timestamp: time.Now().UTC()},
	})
}

// healthResponse is the wire shape for GET /health.
type healthResponse struct {
	Status           string `json:"status"`
	LastCycleAt      string `json:"last_cycle_at,omitempty"`
	DroppedJobsTotal int64  `json:"dropped_persistence_total"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// HandleHealth reports liveness plus a cheap signal of whether the
// Harmonic Loop is actually cycling.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	timeout := h.healthTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := healthResponse{
		Status:           "ok",
		DroppedJobsTotal: h.pool.DroppedCount(),
		UptimeSeconds:    int64(time.Since(h.startedAt).Seconds()),
	}

	if cycle, err := h.db.FindLatestLearningCycle(ctx); err == nil && !cycle.CreatedAt.IsZero() {
		resp.LastCycleAt = cycle.CreatedAt.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleGuidance returns the current guidance snapshot, or 404 if none
// exists or the snapshot has gone stale.
func (h *Handlers) HandleGuidance(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	g, ok, err := readGuidance(h.guidancePath, h.guidanceStaleness, time.Now().UTC())
	if err != nil {
		writeError(w, requestID, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read guidance")
		return
	}
	if !ok {
		writeError(w, requestID, http.StatusNotFound, "NOT_FOUND", "no current guidance")
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data: g,
		Meta: model.ResponseMeta{RequestID: requestID, Timestamp: time.Now().UTC()},
	})
}

// HandleStatsJudgments returns aggregate judgment statistics for the
// session named by the "session_id" query parameter.
func (h *Handlers) HandleStatsJudgments(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	sessionID := r.URL.Query().Get("session_id")

	ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout())
	defer cancel()

	stats, err := h.db.GetStats(ctx, sessionID)
	if err != nil {
		writeError(w, requestID, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data: stats,
		Meta: model.ResponseMeta{RequestID: requestID, Timestamp: time.Now().UTC()},
	})
}

// HandleStatsCycles returns the most recent learning cycle.
func (h *Handlers) HandleStatsCycles(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout())
	defer cancel()

	cycle, err := h.db.FindLatestLearningCycle(ctx)
	if err != nil {
		writeError(w, requestID, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load latest learning cycle")
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{
		Data: cycle,
		Meta: model.ResponseMeta{RequestID: requestID, Timestamp: time.Now().UTC()},
	})
}
