package chain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/akashi/internal/idgen"
	"github.com/ashita-ai/akashi/internal/model"
)

// fakeStore is an in-memory Store for chain tests.
type fakeStore struct {
	blocks    map[int64]model.Block
	judgments map[string]model.Judgment
	head      int64
	hasHead   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocks: map[int64]model.Block{}, judgments: map[string]model.Judgment{}}
}

func (f *fakeStore) CreateBlock(_ context.Context, b model.Block) error {
	if _, exists := f.blocks[b.BlockNumber]; exists {
		return nil // ON CONFLICT DO NOTHING
	}
	f.blocks[b.BlockNumber] = b
	if !f.hasHead || b.BlockNumber > f.head {
		f.head = b.BlockNumber
		f.hasHead = true
	}
	return nil
}

func (f *fakeStore) GetHeadBlock(_ context.Context) (*model.Block, error) {
	if !f.hasHead {
		return nil, nil
	}
	b := f.blocks[f.head]
	return &b, nil
}

func (f *fakeStore) FindBlockByNumber(_ context.Context, number int64) (*model.Block, error) {
	b, ok := f.blocks[number]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) FindBlocksSince(_ context.Context, number int64, limit int) ([]model.Block, error) {
	var out []model.Block
	for i := number; i <= f.head; i++ {
		if b, ok := f.blocks[i]; ok {
			out = append(out, b)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) LinkJudgmentsToBlock(_ context.Context, judgmentIDs []string, blockHash string, blockNumber int64, prevHash string) error {
	for _, id := range judgmentIDs {
		j, ok := f.judgments[id]
		if !ok || j.BlockHash != nil {
			continue
		}
		j.BlockHash = &blockHash
		j.BlockNumber = &blockNumber
		j.PrevHash = &prevHash
		f.judgments[id] = j
	}
	return nil
}

func (f *fakeStore) FindOrphanJudgments(_ context.Context, limit int) ([]model.Judgment, error) {
	var out []model.Judgment
	for _, j := range f.judgments {
		if j.BlockHash == nil {
			out = append(out, j)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) addJudgment() string {
	id := idgen.New(idgen.PrefixJudgment)
	f.judgments[id] = model.Judgment{JudgmentID: id}
	return id
}

func TestSealGenesisPrevHash(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil)
	id := store.addJudgment()

	b, err := c.Seal(context.Background(), []string{id}, time.Now())
	require.NoError(t, err)
	require.Equal(t, model.GenesisPrevHash, b.PrevHash)
	require.Equal(t, int64(0), b.BlockNumber)
}

func TestChainContinuity(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil)

	id1 := store.addJudgment()
	b0, err := c.Seal(context.Background(), []string{id1}, time.Now())
	require.NoError(t, err)

	id2 := store.addJudgment()
	b1, err := c.Seal(context.Background(), []string{id2}, time.Now())
	require.NoError(t, err)

	require.Equal(t, b0.BlockHash, b1.PrevHash)

	mismatches, err := c.VerifyIntegrity(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestAdoptOrphansLinksAllAndContinuesChain(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil)

	seeded := store.addJudgment()
	head, err := c.Seal(context.Background(), []string{seeded}, time.Now())
	require.NoError(t, err)

	// Simulate a crash before linking: three judgments exist with no block_hash.
	orphanIDs := []string{store.addJudgment(), store.addJudgment(), store.addJudgment()}

	b, ok, err := c.AdoptOrphans(context.Background(), 10, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, head.BlockHash, b.PrevHash)
	require.ElementsMatch(t, orphanIDs, b.JudgmentIDs)

	for _, id := range orphanIDs {
		j := store.judgments[id]
		require.NotNil(t, j.BlockHash)
		require.Equal(t, b.BlockHash, *j.BlockHash)
	}

	// Idempotent: no more orphans left.
	_, ok, err = c.AdoptOrphans(context.Background(), 10, time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyIntegrityDetectsTamperedPrevHash(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil)

	id1 := store.addJudgment()
	_, err := c.Seal(context.Background(), []string{id1}, time.Now())
	require.NoError(t, err)
	id2 := store.addJudgment()
	_, err = c.Seal(context.Background(), []string{id2}, time.Now())
	require.NoError(t, err)

	// Tamper block 1's prev_hash.
	b1 := store.blocks[1]
	b1.PrevHash = "deadbeef"
	store.blocks[1] = b1

	mismatches, err := c.VerifyIntegrity(context.Background(), 0, 10)
	require.NoError(t, err)
	require.NotEmpty(t, mismatches)
}

func TestResetRequiresConfirmPhrase(t *testing.T) {
	rs := &recordingResetter{}
	err := Reset(context.Background(), rs, "nope")
	require.Error(t, err)
	require.False(t, rs.called)

	err = Reset(context.Background(), rs, ResetConfirmPhrase)
	require.NoError(t, err)
	require.True(t, rs.called)
}

type recordingResetter struct{ called bool }

func (r *recordingResetter) TruncateAll(_ context.Context) error {
	r.called = true
	return nil
}
