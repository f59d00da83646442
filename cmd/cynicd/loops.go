package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashita-ai/akashi/internal/chain"
	"github.com/ashita-ai/akashi/internal/harmonic"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/internal/storage"
)

// learningCycleLoop polls the Harmonic Loop's post-tool-event counter and
// runs a learning cycle whenever enough events have accumulated, on top of
// the timer as a floor so a quiet kernel still sweeps eventually.
func learningCycleLoop(ctx context.Context, loop *harmonic.Loop, db *storage.DB, logger *slog.Logger) {
	const pollInterval = 10 * time.Second
	const idleCycleInterval = 15 * time.Minute

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	lastRun := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due := loop.CycleDue() || time.Since(lastRun) >= idleCycleInterval
			if !due {
				continue
			}
			rate := learningRateFor(ctx, db, logger)
			cycleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			cycle, err := loop.RunLearningCycle(cycleCtx, rate)
			cancel()
			lastRun = time.Now()
			if err != nil {
				logger.Error("learning cycle failed", "error", err)
				continue
			}
			logger.Info("learning cycle complete",
				"feedback_applied", cycle.FeedbackApplied,
				"patterns_updated", cycle.PatternsUpdated,
				"promotions", cycle.Promotions,
				"demotions", cycle.Demotions)
		}
	}
}

// learningRateFor reads the local user's current learning rate, falling
// back to the profile floor if the profile can't be loaded.
func learningRateFor(ctx context.Context, db *storage.DB, logger *slog.Logger) float64 {
	profile, err := db.GetUserLearningProfile(ctx, localUserID)
	if err != nil {
		logger.Warn("learning cycle: failed to load profile, using floor rate", "error", err)
		return model.LearningRateMin
	}
	return model.ClampLearningRate(profile.LearningRate)
}

// chainSealLoop periodically adopts any judgments left unlinked by a Seal
// call that raced a crash or a failed write, synthesizing a recovery
// block so the chain never accumulates unsealed judgments indefinitely.
func chainSealLoop(ctx context.Context, c *chain.Chain, logger *slog.Logger) {
	const interval = 30 * time.Second
	const adoptLimit = 500

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			block, adopted, err := c.AdoptOrphans(opCtx, adoptLimit, time.Now())
			cancel()
			if err != nil {
				logger.Error("chain: orphan adoption failed", "error", err)
				continue
			}
			if adopted {
				logger.Info("chain: adopted orphan judgments",
					"block_number", block.BlockNumber, "judgment_count", block.JudgmentCount)
			}
		}
	}
}

// integrityProofLoop periodically walks the chain from block 0 and logs
// any hash-link mismatch found. Each pass covers only the first `window`
// blocks (numbers 0 through 999); blocks after those are not checked by
// this loop.
func integrityProofLoop(ctx context.Context, c *chain.Chain, logger *slog.Logger, interval time.Duration) {
	const window = 1000

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			from := int64(0)
			mismatches, err := c.VerifyIntegrity(opCtx, from, window)
			cancel()
			if err != nil {
				logger.Error("chain: integrity verification failed", "error", err)
				continue
			}
			if len(mismatches) > 0 {
				logger.Error("chain: integrity mismatch detected", "count", len(mismatches), "first", mismatches[0])
				continue
			}
			logger.Debug("chain: integrity verified clean", "window", window)
		}
	}
}

// suggestionSweepLoop periodically drops pending suggestions whose
// correlation window elapsed with no observed action, recording each as
// implicit "ignored" feedback so the kernel learns from silence too.
func suggestionSweepLoop(ctx context.Context, loop *harmonic.Loop, logger *slog.Logger) {
	const interval = 30 * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			n, err := loop.SweepIgnoredSuggestions(opCtx)
			cancel()
			if err != nil {
				logger.Error("suggestion sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("suggestion sweep: recorded ignored feedback", "count", n)
			}
		}
	}
}

// escoreRetentionLoop prunes E-Score history on its 24h/7d/365d tiered
// schedule so the table doesn't grow unbounded across a long-lived kernel.
func escoreRetentionLoop(ctx context.Context, db *storage.DB, logger *slog.Logger) {
	const interval = time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := db.CleanupEScoreHistory(opCtx, time.Now())
			cancel()
			if err != nil {
				logger.Error("escore retention cleanup failed", "error", err)
			}
		}
	}
}
