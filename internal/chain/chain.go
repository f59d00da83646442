package chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// Store is the subset of storage.DB the Chain depends on. Defined here
// (rather than importing storage directly) so the Chain can be tested
// against a fake, per the dependency-injection guidance in spec §9.
type Store interface {
	CreateBlock(ctx context.Context, b model.Block) error
	GetHeadBlock(ctx context.Context) (*model.Block, error)
	FindBlockByNumber(ctx context.Context, number int64) (*model.Block, error)
	FindBlocksSince(ctx context.Context, number int64, limit int) ([]model.Block, error)
	LinkJudgmentsToBlock(ctx context.Context, judgmentIDs []string, blockHash string, blockNumber int64, prevHash string) error
	FindOrphanJudgments(ctx context.Context, limit int) ([]model.Judgment, error)
}

// Chain seals judgments into an immutable, SHA-256 linked block stream.
// Block sealing is protected by a single writer lock: concurrent callers
// of Seal/AdoptOrphans serialize, keeping block numbering strictly
// monotonic.
type Chain struct {
	store  Store
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a Chain over the given Store.
func New(store Store, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{store: store, logger: logger}
}

// nowMS returns the current time in epoch milliseconds, matching the
// millisecond-resolution timestamp baked into BlockHash.
func nowMS(t time.Time) int64 {
	return t.UnixMilli()
}

// Seal inserts a new block containing judgmentIDs and links every listed
// judgment whose block_hash is still null. It is a no-op (ON CONFLICT DO
// NOTHING semantics, delegated to the Store) if a block with this number
// already exists from a concurrent writer — that caller's insert wins,
// the stored block is returned, and this call's judgments are simply not
// linked by this invocation.
func (c *Chain) Seal(ctx context.Context, judgmentIDs []string, at time.Time) (model.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head, err := c.store.GetHeadBlock(ctx)
	if err != nil {
		return model.Block{}, fmt.Errorf("chain: get head: %w", err)
	}

	var number int64
	prevHash := model.GenesisPrevHash
	if head != nil {
		number = head.BlockNumber + 1
		prevHash = head.BlockHash
	}

	root := MerkleRoot(judgmentIDs)
	ts := at.UTC()
	hash := BlockHash(number, prevHash, root, nowMS(ts))

	b := model.Block{
		BlockNumber:   number,
		BlockHash:     hash,
		PrevHash:      prevHash,
		MerkleRoot:    root,
		JudgmentCount: len(judgmentIDs),
		JudgmentIDs:   judgmentIDs,
		Timestamp:     ts,
	}

	if err := c.store.CreateBlock(ctx, b); err != nil {
		return model.Block{}, fmt.Errorf("chain: create block: %w", err)
	}
	stored, err := c.store.FindBlockByNumber(ctx, number)
	if err != nil {
		return model.Block{}, fmt.Errorf("chain: find sealed block: %w", err)
	}
	if stored != nil && stored.BlockHash != hash {
		// Another writer sealed this number first; leave these judgments unlinked.
		return *stored, nil
	}
	if err := c.store.LinkJudgmentsToBlock(ctx, judgmentIDs, hash, number, prevHash); err != nil {
		// IntegrityError: the block exists but linking failed. Sealing is
		// deferred for these judgments; they will be picked up by
		// AdoptOrphans on the next maintenance pass. Non-fatal.
		c.logger.Warn("chain: link judgments failed, deferring to orphan adoption", "error", err, "block_number", number)
	}

	return b, nil
}

// AdoptOrphans scans for judgments with a null block_hash, synthesizes one
// recovery block off the current head, and links them. Safe to call when
// there are no orphans (returns a zero Block and ok=false).
func (c *Chain) AdoptOrphans(ctx context.Context, limit int, at time.Time) (model.Block, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orphans, err := c.store.FindOrphanJudgments(ctx, limit)
	if err != nil {
		return model.Block{}, false, fmt.Errorf("chain: find orphans: %w", err)
	}
	if len(orphans) == 0 {
		return model.Block{}, false, nil
	}

	ids := make([]string, len(orphans))
	for i, j := range orphans {
		ids[i] = j.JudgmentID
	}

	head, err := c.store.GetHeadBlock(ctx)
	if err != nil {
		return model.Block{}, false, fmt.Errorf("chain: get head: %w", err)
	}
	var number int64
	prevHash := model.GenesisPrevHash
	if head != nil {
		number = head.BlockNumber + 1
		prevHash = head.BlockHash
	}

	root := MerkleRoot(ids)
	ts := at.UTC()
	hash := BlockHash(number, prevHash, root, nowMS(ts))
	b := model.Block{
		BlockNumber:   number,
		BlockHash:     hash,
		PrevHash:      prevHash,
		MerkleRoot:    root,
		JudgmentCount: len(ids),
		JudgmentIDs:   ids,
		Timestamp:     ts,
	}

	if err := c.store.CreateBlock(ctx, b); err != nil {
		return model.Block{}, false, fmt.Errorf("chain: create recovery block: %w", err)
	}
	if err := c.store.LinkJudgmentsToBlock(ctx, ids, hash, number, prevHash); err != nil {
		return model.Block{}, false, fmt.Errorf("chain: link orphans: %w", err)
	}

	return b, true, nil
}

// VerifyIntegrity walks blocks in ascending order starting at `from` and
// returns every hash-link mismatch found. It never raises; an empty slice
// means the chain is intact over the scanned range.
func (c *Chain) VerifyIntegrity(ctx context.Context, from int64, limit int) ([]model.IntegrityMismatch, error) {
	blocks, err := c.store.FindBlocksSince(ctx, from, limit)
	if err != nil {
		return nil, fmt.Errorf("chain: find blocks since %d: %w", from, err)
	}

	var mismatches []model.IntegrityMismatch
	prevHash := model.GenesisPrevHash
	if from > 0 {
		prior, err := c.store.FindBlockByNumber(ctx, from-1)
		if err != nil {
			return nil, fmt.Errorf("chain: find prior block %d: %w", from-1, err)
		}
		if prior != nil {
			prevHash = prior.BlockHash
		}
	}

	for _, b := range blocks {
		if b.PrevHash != prevHash {
			mismatches = append(mismatches, model.IntegrityMismatch{
				BlockNumber: b.BlockNumber,
				Expected:    prevHash,
				Found:       b.PrevHash,
				Reason:      "prev_hash does not match previous block's block_hash",
			})
		}
		wantRoot := MerkleRoot(b.JudgmentIDs)
		if wantRoot != b.MerkleRoot {
			mismatches = append(mismatches, model.IntegrityMismatch{
				BlockNumber: b.BlockNumber,
				Expected:    wantRoot,
				Found:       b.MerkleRoot,
				Reason:      "merkle_root does not match recomputed root over judgment_ids",
			})
		}
		wantHash := BlockHash(b.BlockNumber, b.PrevHash, b.MerkleRoot, nowMS(b.Timestamp))
		if wantHash != b.BlockHash {
			mismatches = append(mismatches, model.IntegrityMismatch{
				BlockNumber: b.BlockNumber,
				Expected:    wantHash,
				Found:       b.BlockHash,
				Reason:      "block_hash does not match recomputed hash",
			})
		}
		prevHash = b.BlockHash
	}

	return mismatches, nil
}

// ResetConfirmPhrase is the literal string callers must pass to Reset to
// acknowledge the destructive, irreversible nature of the operation.
const ResetConfirmPhrase = "BURN_IT_ALL"

// Resetter is implemented by a Store that supports the destructive Reset
// operation. Kept separate from Store so that read-mostly callers of the
// Chain are not coupled to a truncate-everything capability.
type Resetter interface {
	TruncateAll(ctx context.Context) error
}

// Reset truncates judgments, blocks, patterns, knowledge, sessions, and
// feedback with identity restart. It is gated by a literal confirm
// phrase and is the one operation in this package allowed to raise a
// fatal, unrecoverable error (spec's IrreversibleDanger class).
func Reset(ctx context.Context, store Resetter, confirmPhrase string) error {
	if confirmPhrase != ResetConfirmPhrase {
		return fmt.Errorf("chain: reset refused: confirm phrase mismatch")
	}
	return store.TruncateAll(ctx)
}
