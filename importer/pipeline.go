package importer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"

	chainerrors "chaincore/errors"
	"chaincore/events"
	"chaincore/interfaces"
	"chaincore/logx"
	"chaincore/store"
	"chaincore/trie"
	"chaincore/types"
)

// Pipeline drives a block through Received -> Validated -> Executed ->
// Committed -> Notified. Imports are serialized by a single writer lock;
// readers keep querying immutable snapshots concurrently. After a fatal
// storage error the pipeline halts and refuses further writes.
type Pipeline struct {
	mu         sync.Mutex
	index      store.ChainIndex
	trieDB     *trie.Database
	executor   interfaces.Executor
	forkChoice interfaces.ForkChoice
	bus        *events.EventBus
	retry      RetryPolicy
	halted     atomic.Bool
}

// ImportResult reports the outcome of a successful (or idempotent) import.
type ImportResult struct {
	Hash            types.Hash
	Number          uint64
	IsNewBest       bool
	AlreadyImported bool
}

// NewPipeline wires the import pipeline to its collaborators.
func NewPipeline(index store.ChainIndex, trieDB *trie.Database, executor interfaces.Executor, forkChoice interfaces.ForkChoice, bus *events.EventBus, retry RetryPolicy) *Pipeline {
	return &Pipeline{
		index:      index,
		trieDB:     trieDB,
		executor:   executor,
		forkChoice: forkChoice,
		bus:        bus,
		retry:      retry,
	}
}

// Halted reports whether a fatal storage error has stopped the pipeline.
func (p *Pipeline) Halted() bool {
	return p.halted.Load()
}

func (p *Pipeline) fatal(err error) error {
	p.halted.Store(true)
	logx.Error("IMPORTER", "Fatal storage error, halting imports: ", err)
	return err
}

// ImportBlock validates, executes and durably commits one block, then emits
// the import notification. Re-importing a committed block is a no-op.
func (p *Pipeline) ImportBlock(ctx context.Context, block *types.Block) (*ImportResult, error) {
	if p.halted.Load() {
		return nil, chainerrors.ErrHalted
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	hash := block.Hash()
	header := block.Header

	// Idempotence: a block already past validation never re-enters the
	// pipeline and produces no duplicate notification.
	existing, err := p.index.Lookup(hash)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status >= types.StatusValid {
		return &ImportResult{Hash: hash, Number: header.Number, AlreadyImported: true}, nil
	}

	parent, err := p.validate(hash, block)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	staged, err := p.execute(block, parent)
	if err != nil {
		return nil, err
	}

	weight, err := p.cumulativeWeight(&header, parent)
	if err != nil {
		return nil, err
	}

	isNewBest := p.isNewBest(hash, weight)

	commit := &store.Commit{
		TrieNodes: staged,
		Header:    &store.HeaderRecord{Hash: hash, Header: header, Status: types.StatusValid, Weight: weight},
		Body:      block.Extrinsics,
		Status:    make(map[types.Hash]types.BlockStatus),
	}

	var retracted, enacted []types.Hash
	if isNewBest {
		r, err := p.computeRoute(p.index.BestBlock(), hash, &header)
		if err != nil {
			return nil, p.fatal(err)
		}
		retracted, enacted = r.retracted, r.enacted
		commit.Canonical = r.canonical
		commit.CanonicalDrop = r.drop
		commit.Best = &hash
		commit.BestWeight = weight
		commit.Header.Status = types.StatusCanonical
		for _, h := range retracted {
			commit.Status[h] = types.StatusValid
		}
		for _, h := range enacted {
			if h != hash {
				commit.Status[h] = types.StatusCanonical
			}
		}
	}
	if parent == nil {
		// Genesis anchors both pointers and is final by definition.
		commit.Header.Status = types.StatusFinalized
		commit.Finalized = &hash
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.commitWithRetry(ctx, commit); err != nil {
		if chainerrors.IsFatal(err) {
			return nil, p.fatal(err)
		}
		return nil, err
	}

	p.bus.Publish(events.NewImportNotification(hash, header, isNewBest, retracted, enacted))
	logx.Info("IMPORTER", fmt.Sprintf("Imported block | number=%d hash=%s best=%t retracted=%d enacted=%d",
		header.Number, hash.Short(), isNewBest, len(retracted), len(enacted)))

	return &ImportResult{Hash: hash, Number: header.Number, IsNewBest: isNewBest}, nil
}

// validate checks header well-formedness and parent linkage. It returns the
// parent record, or nil for genesis.
func (p *Pipeline) validate(hash types.Hash, block *types.Block) (*store.HeaderRecord, error) {
	header := block.Header

	if types.ComputeExtrinsicsRoot(block.Extrinsics) != header.ExtrinsicsRoot {
		return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
			"extrinsics root mismatch for block %s", hash.Short())
	}

	if header.Number == 0 {
		if !header.ParentHash.IsZero() {
			return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
				"genesis block %s declares a parent", hash.Short())
		}
		if existing, _, err := p.index.HashByNumber(0); err != nil {
			return nil, err
		} else if existing != types.ZeroHash && existing != hash {
			return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
				"conflicting genesis block %s", hash.Short())
		}
		return nil, nil
	}

	if header.ParentHash == hash {
		return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
			"block %s is its own parent", hash.Short())
	}

	parent, err := p.index.Lookup(header.ParentHash)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
			"parent %s of block %s not known", header.ParentHash.Short(), hash.Short())
	}
	if parent.Status == types.StatusPruned {
		return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
			"parent %s of block %s was pruned", header.ParentHash.Short(), hash.Short())
	}
	if header.Number != parent.Header.Number+1 {
		return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
			"block %s number %d does not follow parent number %d", hash.Short(), header.Number, parent.Header.Number)
	}

	// Forks below the finalized block can never become canonical.
	finalized := p.index.FinalizedBlock()
	if !finalized.IsZero() {
		finalizedRec, err := p.index.Lookup(finalized)
		if err != nil {
			return nil, err
		}
		if finalizedRec != nil && header.Number <= finalizedRec.Header.Number {
			return nil, chainerrors.New(chainerrors.ErrCodeInvalidHeader,
				"block %s at number %d would fork below finalized number %d", hash.Short(), header.Number, finalizedRec.Header.Number)
		}
	}
	return parent, nil
}

// execute runs the extrinsics on the parent snapshot and verifies the
// declared state root. The staged trie nodes for the new root are returned
// for the commit batch.
func (p *Pipeline) execute(block *types.Block, parent *store.HeaderRecord) (types.ChangeSet, error) {
	parentRoot := types.ZeroHash
	if parent != nil {
		parentRoot = parent.Header.StateRoot
	}

	snapshot, err := p.trieDB.Open(parentRoot)
	if err != nil {
		return nil, p.fatal(err)
	}

	changes, err := p.executor.Execute(snapshot, block.Extrinsics)
	if err != nil {
		return nil, chainerrors.Wrap(chainerrors.ErrCodeExecutionTrap, err,
			"execution of block %s trapped", block.Hash().Short())
	}

	newRoot, staged, err := snapshot.ApplyChanges(changes)
	if err != nil {
		return nil, p.fatal(err)
	}
	if newRoot != block.Header.StateRoot {
		return nil, chainerrors.New(chainerrors.ErrCodeStateRootMismatch,
			"block %s declares state root %s but execution produced %s",
			block.Hash().Short(), block.Header.StateRoot.Short(), newRoot.Short())
	}
	return staged, nil
}

// cumulativeWeight adds the consensus-supplied block weight to the parent's
// cumulative weight.
func (p *Pipeline) cumulativeWeight(header *types.Header, parent *store.HeaderRecord) (*uint256.Int, error) {
	own, err := p.forkChoice.Weight(header)
	if err != nil {
		return nil, fmt.Errorf("fork choice weight for block %s: %w", header.Hash().Short(), err)
	}
	total := new(uint256.Int).Set(own)
	if parent != nil {
		total.Add(total, parent.Weight)
	}
	return total, nil
}

// isNewBest decides the best-block policy: strictly greater cumulative
// weight wins; ties break toward the lexicographically smaller hash so all
// nodes resolve competing tips identically.
func (p *Pipeline) isNewBest(hash types.Hash, weight *uint256.Int) bool {
	best := p.index.BestBlock()
	if best.IsZero() {
		return true
	}
	switch weight.Cmp(p.index.BestWeight()) {
	case 1:
		return true
	case -1:
		return false
	default:
		return string(hash[:]) < string(best[:])
	}
}
