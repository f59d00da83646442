package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
	"github.com/ashita-ai/akashi/migrations"
)

// newTestDB opens a fresh SQLite file in a temp directory and runs
// migrations against it, mirroring how cmd/cynicd boots the kernel.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cynic.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := New(context.Background(), path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.RunMigrations(context.Background(), migrations.FS))
	return db
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetJudgment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	jd := model.Judgment{
		JudgmentID:  idgen.New(idgen.PrefixJudgment),
		SessionID:   strPtr("sess-1"),
		ItemType:    "code_change",
		ItemContent: "diff --git a b",
		ItemHash:    "hash-1",
		QScore:      72,
		Confidence:  0.5,
		Verdict:     model.VerdictHowl,
		AxiomScores: map[model.Axiom]float64{model.AxiomPhi: 0.8, model.AxiomBurn: 0.6},
		Weaknesses:  []string{"missing test"},
	}

	created, err := db.CreateJudgment(ctx, jd)
	require.NoError(t, err)
	assert.Equal(t, jd.JudgmentID, created.JudgmentID)

	got, err := db.GetJudgment(ctx, jd.JudgmentID)
	require.NoError(t, err)
	assert.Equal(t, jd.QScore, got.QScore)
	assert.Equal(t, jd.Verdict, got.Verdict)
	assert.Equal(t, []string{"missing test"}, got.Weaknesses)
	assert.InDelta(t, 0.8, got.AxiomScores[model.AxiomPhi], 0.0001)
}

func TestCreateJudgment_DedupBySameHashAndSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	jd := model.Judgment{
		JudgmentID:  idgen.New(idgen.PrefixJudgment),
		SessionID:   strPtr("sess-1"),
		ItemType:    "code_change",
		ItemContent: "same content",
		ItemHash:    "dup-hash",
		QScore:      50,
		Verdict:     model.VerdictWag,
		AxiomScores: map[model.Axiom]float64{},
	}
	first, err := db.CreateJudgment(ctx, jd)
	require.NoError(t, err)

	dup := jd
	dup.JudgmentID = idgen.New(idgen.PrefixJudgment)
	dup.QScore = 99 // would differ if a second row were actually inserted

	second, err := db.CreateJudgment(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, first.JudgmentID, second.JudgmentID, "duplicate hash+session should return the existing row")
	assert.Equal(t, first.QScore, second.QScore)
}

func TestFindJudgments_FiltersAndOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sess := strPtr("sess-filter")
	for i, v := range []model.Verdict{model.VerdictHowl, model.VerdictBark, model.VerdictHowl} {
		jd := model.Judgment{
			JudgmentID:  idgen.New(idgen.PrefixJudgment),
			SessionID:   sess,
			ItemType:    "code_change",
			ItemContent: "content",
			ItemHash:    "hash-" + string(rune('a'+i)),
			Verdict:     v,
			AxiomScores: map[model.Axiom]float64{},
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		_, err := db.CreateJudgment(ctx, jd)
		require.NoError(t, err)
	}

	howls, err := db.FindJudgments(ctx, FindJudgmentsOpts{SessionID: sess, Verdict: verdictPtr(model.VerdictHowl)})
	require.NoError(t, err)
	assert.Len(t, howls, 2)

	all, err := db.FindJudgments(ctx, FindJudgmentsOpts{SessionID: sess})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt) || all[0].CreatedAt.Equal(all[1].CreatedAt))
}

func verdictPtr(v model.Verdict) *model.Verdict { return &v }

func TestGetStats_AggregatesBySession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sess := strPtr("sess-stats")

	scores := []float64{60, 80}
	for i, q := range scores {
		jd := model.Judgment{
			JudgmentID:  idgen.New(idgen.PrefixJudgment),
			SessionID:   sess,
			ItemType:    "code_change",
			ItemContent: "c",
			ItemHash:    "stats-hash-" + string(rune('a'+i)),
			QScore:      q,
			Confidence:  0.5,
			Verdict:     model.VerdictHowl,
			AxiomScores: map[model.Axiom]float64{},
		}
		_, err := db.CreateJudgment(ctx, jd)
		require.NoError(t, err)
	}

	stats, err := db.GetStats(ctx, "sess-stats")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 70, stats.MeanQScore, 0.001)
	assert.Equal(t, 2, stats.ByVerdict[model.VerdictHowl])
}

func TestFindOrphanJudgments_AndLinkToBlock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	jd := model.Judgment{
		JudgmentID:  idgen.New(idgen.PrefixJudgment),
		ItemType:    "code_change",
		ItemContent: "c",
		ItemHash:    "orphan-hash",
		Verdict:     model.VerdictHowl,
		AxiomScores: map[model.Axiom]float64{},
	}
	_, err := db.CreateJudgment(ctx, jd)
	require.NoError(t, err)

	orphans, err := db.FindOrphanJudgments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	require.NoError(t, db.LinkJudgmentsToBlock(ctx, []string{jd.JudgmentID}, "block-hash", 1, model.GenesisPrevHash))

	orphansAfter, err := db.FindOrphanJudgments(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, orphansAfter)

	linked, err := db.GetJudgment(ctx, jd.JudgmentID)
	require.NoError(t, err)
	require.NotNil(t, linked.BlockNumber)
	assert.Equal(t, int64(1), *linked.BlockNumber)
}

func TestCreateBlock_AndChainTraversal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	genesis := model.Block{
		BlockNumber:   0,
		BlockHash:     "hash-0",
		PrevHash:      model.GenesisPrevHash,
		MerkleRoot:    "root-0",
		JudgmentCount: 0,
		Timestamp:     time.Now().UTC(),
	}
	require.NoError(t, db.CreateBlock(ctx, genesis))

	head, err := db.GetHeadBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), head.BlockNumber)

	next := model.Block{
		BlockNumber:   1,
		BlockHash:     "hash-1",
		PrevHash:      "hash-0",
		MerkleRoot:    "root-1",
		JudgmentCount: 1,
		JudgmentIDs:   []string{"jdg_1"},
		Timestamp:     time.Now().UTC(),
	}
	require.NoError(t, db.CreateBlock(ctx, next))

	head, err = db.GetHeadBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), head.BlockNumber)

	found, err := db.FindBlockByNumber(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "hash-0", found.BlockHash)

	since, err := db.FindBlocksSince(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, since, 2)
	assert.Equal(t, int64(1), since[1].BlockNumber)
}

func TestCreateBlock_DuplicateNumberIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := model.Block{BlockNumber: 0, BlockHash: "hash-a", PrevHash: model.GenesisPrevHash, Timestamp: time.Now().UTC()}
	require.NoError(t, db.CreateBlock(ctx, b))

	dup := model.Block{BlockNumber: 0, BlockHash: "hash-b", PrevHash: model.GenesisPrevHash, Timestamp: time.Now().UTC()}
	require.NoError(t, db.CreateBlock(ctx, dup))

	got, err := db.FindBlockByNumber(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "hash-a", got.BlockHash, "second insert at the same block number must be ignored")
}

func TestUpsertPattern_NewThenMergeConfidenceAsMax(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p, err := db.UpsertPattern(ctx, "code_smell", "long_function", 0.3, now)
	require.NoError(t, err)
	assert.Equal(t, 1, p.OccurrenceCount)
	assert.InDelta(t, 0.3, p.Confidence, 0.0001)

	p2, err := db.UpsertPattern(ctx, "code_smell", "long_function", 0.2, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, p2.OccurrenceCount)
	assert.InDelta(t, 0.3, p2.Confidence, 0.0001, "confidence must merge as max, not overwrite with a lower value")

	p3, err := db.UpsertPattern(ctx, "code_smell", "long_function", 0.9, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.LessOrEqual(t, p3.Confidence, model.MaxConfidence, "confidence must never exceed the phi^-1 cap")
}

func TestBestMatchConfidence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	assert.Equal(t, 0.0, db.BestMatchConfidence("code_smell", "unknown_key"))

	_, err := db.UpsertPattern(ctx, "code_smell", "deep_nesting", 0.45, now)
	require.NoError(t, err)

	assert.InDelta(t, 0.45, db.BestMatchConfidence("code_smell", "deep_nesting"), 0.0001)
}

func TestPromoteDemoteMergePattern(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p, err := db.UpsertPattern(ctx, "heuristic", "early_return", 0.6, now)
	require.NoError(t, err)

	require.NoError(t, db.PromotePattern(ctx, p.PatternID, now))
	active, err := db.ListActivePatterns(ctx, "heuristic")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].IsHeuristic())

	require.NoError(t, db.DemotePattern(ctx, p.PatternID))
	active, err = db.ListActivePatterns(ctx, "heuristic")
	require.NoError(t, err)
	assert.False(t, active[0].IsHeuristic())

	other, err := db.UpsertPattern(ctx, "heuristic", "guard_clause", 0.5, now)
	require.NoError(t, err)
	require.NoError(t, db.MergePattern(ctx, p.PatternID, other.PatternID, now))

	active, err = db.ListActivePatterns(ctx, "heuristic")
	require.NoError(t, err)
	assert.Len(t, active, 1, "merged pattern must be excluded from active queries")
	assert.Equal(t, other.PatternID, active[0].PatternID)
}

func TestFindSimilarPatternKeys(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.UpsertPattern(ctx, "code_smell", "missing_error_check", 0.4, now)
	require.NoError(t, err)
	_, err = db.UpsertPattern(ctx, "code_smell", "missing_nil_check", 0.4, now)
	require.NoError(t, err)

	keys, err := db.FindSimilarPatternKeys(ctx, "code_smell", "missing_error_check", 10)
	require.NoError(t, err)
	assert.NotContains(t, keys, "missing_error_check", "a key must never be similar to itself")
}

func TestCreateFeedback_FindUnapplied_MarkApplied(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	jdID := "jdg_x"
	rating := 5
	f := model.Feedback{
		JudgmentID: &jdID,
		SourceType: model.FeedbackSourceExplicit,
		Rating:     &rating,
		Confidence: 1.0,
	}
	created, err := db.CreateFeedback(ctx, f)
	require.NoError(t, err)
	assert.False(t, created.Applied)

	unapplied, err := db.FindUnappliedFeedback(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unapplied, 1)
	assert.Equal(t, created.FeedbackID, unapplied[0].FeedbackID)

	require.NoError(t, db.MarkFeedbackApplied(ctx, []string{created.FeedbackID}))

	unapplied, err = db.FindUnappliedFeedback(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unapplied)
}

func TestArmRoundTrip_DefaultsToUniformPrior(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a, err := db.GetArm(ctx, "heuristic:early_return")
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Alpha)
	assert.Equal(t, 1.0, a.Beta)
	assert.Equal(t, model.ArmHeuristic, a.Kind)
	assert.Equal(t, "early_return", a.Label)

	a.Alpha = 4
	a.Beta = 2
	require.NoError(t, db.UpsertArm(ctx, a, time.Now().UTC()))

	reloaded, err := db.GetArm(ctx, "heuristic:early_return")
	require.NoError(t, err)
	assert.Equal(t, 4.0, reloaded.Alpha)
	assert.Equal(t, 2.0, reloaded.Beta)

	arms, err := db.ListArms(ctx, model.ArmHeuristic)
	require.NoError(t, err)
	require.Len(t, arms, 1)
}

func TestQTableEntryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	empty, err := db.GetQTableEntry(ctx, "state-a", "dog-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.Value)

	e := model.QTableEntry{StateKey: "state-a", Action: "dog-1", Value: 0.42, Episodes: 3}
	require.NoError(t, db.UpsertQTableEntry(ctx, e, time.Now().UTC()))

	got, err := db.GetQTableEntry(ctx, "state-a", "dog-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, got.Value, 0.0001)
	assert.Equal(t, 3, got.Episodes)

	entries, err := db.ListQTableEntries(ctx, "state-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestListAllQTableEntries_SpansStateKeys(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.UpsertQTableEntry(ctx, model.QTableEntry{StateKey: "state-a", Action: "dog-1", Value: 0.1}, now))
	require.NoError(t, db.UpsertQTableEntry(ctx, model.QTableEntry{StateKey: "state-b", Action: "dog-2", Value: 0.2}, now))

	entries, err := db.ListAllQTableEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCreateLearningCycle_AndFindLatest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.FindLatestLearningCycle(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	c1 := model.LearningCycle{FeedbackApplied: 5, PatternsUpdated: 2, CreatedAt: time.Now().UTC()}
	_, err = db.CreateLearningCycle(ctx, c1)
	require.NoError(t, err)

	c2 := model.LearningCycle{FeedbackApplied: 8, PatternsUpdated: 1, CreatedAt: time.Now().UTC().Add(time.Minute)}
	created2, err := db.CreateLearningCycle(ctx, c2)
	require.NoError(t, err)

	latest, err := db.FindLatestLearningCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, created2.CycleID, latest.CycleID)
	assert.Equal(t, 8, latest.FeedbackApplied)
}
