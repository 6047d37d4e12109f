package importer

import (
	"context"
	"fmt"

	chainerrors "chaincore/errors"
	"chaincore/events"
	"chaincore/logx"
	"chaincore/store"
	"chaincore/types"
)

// FinalizeBlock applies an external finality signal: the target and its
// canonical ancestors become Finalized, and stale forks branching below the
// new finalized block are pruned. Finalizing an already-final block is a
// no-op.
func (p *Pipeline) FinalizeBlock(ctx context.Context, hash types.Hash) error {
	if p.halted.Load() {
		return chainerrors.ErrHalted
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.index.Lookup(hash)
	if err != nil {
		return err
	}
	if rec == nil {
		return chainerrors.Wrap(chainerrors.ErrCodeBlockNotFound, nil, "finality target %s", hash.Short())
	}
	if rec.Status == types.StatusFinalized {
		return nil
	}

	// Finality only advances along the canonical chain; the consensus
	// collaborator must make a fork canonical (via weight) before
	// finalizing into it.
	canonical, ok, err := p.index.HashByNumber(rec.Header.Number)
	if err != nil {
		return err
	}
	if !ok || canonical != hash {
		return fmt.Errorf("finality target %s at number %d is not canonical", hash.Short(), rec.Header.Number)
	}

	prevFinalized := p.index.FinalizedBlock()
	prevNumber := uint64(0)
	if !prevFinalized.IsZero() {
		prevRec, err := p.index.Lookup(prevFinalized)
		if err != nil {
			return err
		}
		if prevRec == nil {
			return p.fatal(chainerrors.New(chainerrors.ErrCodeTrieCorrupted,
				"finalized pointer references unknown block %s", prevFinalized.Hex()))
		}
		prevNumber = prevRec.Header.Number
		if rec.Header.Number <= prevNumber {
			return fmt.Errorf("finality target %s at number %d does not advance finalized number %d",
				hash.Short(), rec.Header.Number, prevNumber)
		}
	}

	segment, statusChanges, err := p.finalizedSegment(prevNumber, rec.Header.Number, prevFinalized.IsZero())
	if err != nil {
		return err
	}

	pruned, err := p.pruneStaleForks(segment, statusChanges)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	commit := &store.Commit{Status: statusChanges, Finalized: &hash}
	if err := p.commitWithRetry(ctx, commit); err != nil {
		if chainerrors.IsFatal(err) {
			return p.fatal(err)
		}
		return err
	}

	p.bus.Publish(events.NewFinalityNotification(hash, rec.Header, segment, pruned))
	logx.Info("IMPORTER", fmt.Sprintf("Finalized block | number=%d hash=%s segment=%d pruned=%d",
		rec.Header.Number, hash.Short(), len(segment), len(pruned)))
	return nil
}

// finalizedSegment collects the canonical hashes in (prevNumber, target] in
// ascending order and stages their status transitions.
func (p *Pipeline) finalizedSegment(prevNumber, targetNumber uint64, fromGenesis bool) ([]types.Hash, map[types.Hash]types.BlockStatus, error) {
	start := prevNumber + 1
	if fromGenesis {
		start = 0
	}

	segment := make([]types.Hash, 0, targetNumber-start+1)
	statusChanges := make(map[types.Hash]types.BlockStatus)
	for n := start; n <= targetNumber; n++ {
		h, ok, err := p.index.HashByNumber(n)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, p.fatal(chainerrors.New(chainerrors.ErrCodeTrieCorrupted,
				"canonical index has no entry at number %d", n))
		}
		segment = append(segment, h)
		rec, err := p.index.Lookup(h)
		if err != nil {
			return nil, nil, err
		}
		if rec != nil && rec.Status != types.StatusFinalized {
			statusChanges[h] = types.StatusFinalized
		}
	}
	return segment, statusChanges, nil
}

// pruneStaleForks marks every block subtree branching off the newly
// finalized segment (below its tip) as pruned. Their exclusively-owned state
// becomes eligible for garbage collection.
func (p *Pipeline) pruneStaleForks(segment []types.Hash, statusChanges map[types.Hash]types.BlockStatus) ([]types.Hash, error) {
	var pruned []types.Hash
	for _, finalizedHash := range segment {
		rec, err := p.index.Lookup(finalizedHash)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.Header.ParentHash.IsZero() {
			continue
		}
		siblings, err := p.index.ChildrenOf(rec.Header.ParentHash)
		if err != nil {
			return nil, err
		}
		for _, sibling := range siblings {
			if sibling == finalizedHash {
				continue
			}
			if err := p.pruneSubtree(sibling, statusChanges, &pruned); err != nil {
				return nil, err
			}
		}
	}
	return pruned, nil
}

func (p *Pipeline) pruneSubtree(hash types.Hash, statusChanges map[types.Hash]types.BlockStatus, pruned *[]types.Hash) error {
	rec, err := p.index.Lookup(hash)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status == types.StatusPruned {
		return nil
	}
	statusChanges[hash] = types.StatusPruned
	*pruned = append(*pruned, hash)

	children, err := p.index.ChildrenOf(hash)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := p.pruneSubtree(child, statusChanges, pruned); err != nil {
			return err
		}
	}
	return nil
}
