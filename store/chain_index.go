package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"chaincore/db"
	chainerrors "chaincore/errors"
	"chaincore/logx"
	"chaincore/types"
)

// HeaderRecord is the persisted per-block metadata: the header itself, its
// lifecycle status and the cumulative fork-choice weight of the chain ending
// at this block.
type HeaderRecord struct {
	Hash   types.Hash        `json:"hash"`
	Header types.Header      `json:"header"`
	Status types.BlockStatus `json:"status"`
	Weight *uint256.Int      `json:"weight"`
}

// Commit is one atomic mutation of the chain. The import pipeline assembles
// it; the chain index validates status transitions and persists everything in
// a single storage batch, so either the whole commit becomes durable or none
// of it does.
type Commit struct {
	// TrieNodes are the staged state trie nodes backing the new state root.
	TrieNodes types.ChangeSet

	// Header and Body describe the newly imported block. Nil for commits
	// that only move status (finality, pruning).
	Header *HeaderRecord
	Body   []types.Extrinsic

	// Status carries transitions for already-stored blocks.
	Status map[types.Hash]types.BlockStatus

	// Canonical sets number->hash entries; CanonicalDrop clears numbers left
	// behind when the canonical chain shortens in a re-org.
	Canonical     map[uint64]types.Hash
	CanonicalDrop []uint64

	// Best and Finalized move the respective pointers when non-nil.
	Best       *types.Hash
	BestWeight *uint256.Int
	Finalized  *types.Hash
}

// ChainIndex is the blockchain metadata store: headers, bodies, parent-child
// linkage, the canonical-number index and the best/finalized pointers. It is
// the sole owner of block status transitions.
type ChainIndex interface {
	Lookup(hash types.Hash) (*HeaderRecord, error)
	Body(hash types.Hash) ([]types.Extrinsic, error)
	ChildrenOf(hash types.Hash) ([]types.Hash, error)
	HashByNumber(number uint64) (types.Hash, bool, error)
	BestBlock() types.Hash
	BestWeight() *uint256.Int
	FinalizedBlock() types.Hash
	ApplyCommit(commit *Commit) error
	MustClose()
}

// GenericChainIndex is a database-agnostic ChainIndex over a DatabaseProvider.
type GenericChainIndex struct {
	provider db.DatabaseProvider

	mu         sync.RWMutex
	best       types.Hash
	bestWeight *uint256.Int
	finalized  types.Hash
}

// NewGenericChainIndex opens the chain index, loading persisted pointers.
func NewGenericChainIndex(provider db.DatabaseProvider) (*GenericChainIndex, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	idx := &GenericChainIndex{provider: provider, bestWeight: uint256.NewInt(0)}
	if err := idx.loadPointers(); err != nil {
		return nil, fmt.Errorf("failed to load chain pointers: %w", err)
	}
	return idx, nil
}

func metaKey(name string) []byte {
	return []byte(PrefixMeta + name)
}

func headerKey(hash types.Hash) []byte {
	return append([]byte(PrefixHeader), hash[:]...)
}

func bodyKey(hash types.Hash) []byte {
	return append([]byte(PrefixBody), hash[:]...)
}

func childrenKey(hash types.Hash) []byte {
	return append([]byte(PrefixChildren), hash[:]...)
}

func canonicalKey(number uint64) []byte {
	key := make([]byte, len(PrefixCanonical)+8)
	copy(key, PrefixCanonical)
	binary.BigEndian.PutUint64(key[len(PrefixCanonical):], number)
	return key
}

func (c *GenericChainIndex) loadPointers() error {
	values, err := c.provider.GetBatch([][]byte{
		metaKey(MetaKeyBest),
		metaKey(MetaKeyFinalized),
		metaKey(MetaKeyBestWeight),
	})
	if err != nil {
		return err
	}

	if raw, ok := values[string(metaKey(MetaKeyBest))]; ok {
		if len(raw) != types.HashSize {
			return fmt.Errorf("invalid best pointer length: %d", len(raw))
		}
		copy(c.best[:], raw)
	}
	if raw, ok := values[string(metaKey(MetaKeyFinalized))]; ok {
		if len(raw) != types.HashSize {
			return fmt.Errorf("invalid finalized pointer length: %d", len(raw))
		}
		copy(c.finalized[:], raw)
	}
	if raw, ok := values[string(metaKey(MetaKeyBestWeight))]; ok {
		c.bestWeight = new(uint256.Int).SetBytes(raw)
	}
	return nil
}

// Lookup returns the stored record for hash, or nil when unknown.
func (c *GenericChainIndex) Lookup(hash types.Hash) (*HeaderRecord, error) {
	raw, err := c.provider.Get(headerKey(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get header %s: %w", hash.Short(), err)
	}
	if raw == nil {
		return nil, nil
	}
	var rec HeaderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header %s: %w", hash.Short(), err)
	}
	return &rec, nil
}

// Body returns the stored extrinsics for hash, or nil when unknown.
func (c *GenericChainIndex) Body(hash types.Hash) ([]types.Extrinsic, error) {
	raw, err := c.provider.Get(bodyKey(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get body %s: %w", hash.Short(), err)
	}
	if raw == nil {
		return nil, nil
	}
	var body []types.Extrinsic
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to unmarshal body %s: %w", hash.Short(), err)
	}
	return body, nil
}

// ChildrenOf returns the known children of hash.
func (c *GenericChainIndex) ChildrenOf(hash types.Hash) ([]types.Hash, error) {
	raw, err := c.provider.Get(childrenKey(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get children of %s: %w", hash.Short(), err)
	}
	if raw == nil {
		return nil, nil
	}
	var children []types.Hash
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("failed to unmarshal children of %s: %w", hash.Short(), err)
	}
	return children, nil
}

// HashByNumber returns the canonical block hash at the given height.
func (c *GenericChainIndex) HashByNumber(number uint64) (types.Hash, bool, error) {
	raw, err := c.provider.Get(canonicalKey(number))
	if err != nil {
		return types.ZeroHash, false, fmt.Errorf("failed to get canonical hash at %d: %w", number, err)
	}
	if raw == nil {
		return types.ZeroHash, false, nil
	}
	if len(raw) != types.HashSize {
		return types.ZeroHash, false, fmt.Errorf("invalid canonical hash length at %d: %d", number, len(raw))
	}
	var hash types.Hash
	copy(hash[:], raw)
	return hash, true, nil
}

// BestBlock returns the current best block hash.
func (c *GenericChainIndex) BestBlock() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.best
}

// BestWeight returns the cumulative fork-choice weight of the best chain.
func (c *GenericChainIndex) BestWeight() *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(uint256.Int).Set(c.bestWeight)
}

// FinalizedBlock returns the latest finalized block hash.
func (c *GenericChainIndex) FinalizedBlock() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finalized
}

// ApplyCommit validates and persists one atomic chain mutation. Status
// transitions that violate the lifecycle rule fail the whole commit with
// ErrInvalidStatusTransition before anything is written.
func (c *GenericChainIndex) ApplyCommit(commit *Commit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := c.provider.Batch()
	defer batch.Close()

	for _, kv := range commit.TrieNodes {
		if kv.Delete {
			batch.Delete(kv.Key)
			continue
		}
		batch.Put(kv.Key, kv.Value)
	}

	if commit.Header != nil {
		if err := c.stageNewHeader(batch, commit.Header, commit.Body); err != nil {
			return err
		}
	}

	for hash, next := range commit.Status {
		if err := c.stageStatus(batch, hash, next); err != nil {
			return err
		}
	}

	for number, hash := range commit.Canonical {
		batch.Put(canonicalKey(number), hash.Bytes())
	}
	for _, number := range commit.CanonicalDrop {
		batch.Delete(canonicalKey(number))
	}

	if commit.Best != nil {
		batch.Put(metaKey(MetaKeyBest), commit.Best.Bytes())
		if commit.BestWeight != nil {
			batch.Put(metaKey(MetaKeyBestWeight), commit.BestWeight.Bytes())
		}
	}
	if commit.Finalized != nil {
		batch.Put(metaKey(MetaKeyFinalized), commit.Finalized.Bytes())
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write chain commit: %w", err)
	}

	// The batch is durable; move the cached pointers.
	if commit.Best != nil {
		c.best = *commit.Best
		if commit.BestWeight != nil {
			c.bestWeight = new(uint256.Int).Set(commit.BestWeight)
		}
	}
	if commit.Finalized != nil {
		c.finalized = *commit.Finalized
	}
	return nil
}

func (c *GenericChainIndex) stageNewHeader(batch db.DatabaseBatch, rec *HeaderRecord, body []types.Extrinsic) error {
	if rec.Weight == nil {
		return fmt.Errorf("header record for %s has no weight", rec.Hash.Short())
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal header %s: %w", rec.Hash.Short(), err)
	}
	batch.Put(headerKey(rec.Hash), raw)

	if body == nil {
		body = []types.Extrinsic{}
	}
	rawBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body %s: %w", rec.Hash.Short(), err)
	}
	batch.Put(bodyKey(rec.Hash), rawBody)

	// Link the block into its parent's child list. Genesis has no parent.
	if !rec.Header.ParentHash.IsZero() {
		children, err := c.ChildrenOf(rec.Header.ParentHash)
		if err != nil {
			return err
		}
		for _, existing := range children {
			if existing == rec.Hash {
				return nil
			}
		}
		children = append(children, rec.Hash)
		rawChildren, err := json.Marshal(children)
		if err != nil {
			return fmt.Errorf("failed to marshal children: %w", err)
		}
		batch.Put(childrenKey(rec.Header.ParentHash), rawChildren)
	}
	return nil
}

func (c *GenericChainIndex) stageStatus(batch db.DatabaseBatch, hash types.Hash, next types.BlockStatus) error {
	rec, err := c.Lookup(hash)
	if err != nil {
		return err
	}
	if rec == nil {
		return chainerrors.New(chainerrors.ErrCodeInvalidStatusTransition,
			"status change for unknown block %s", hash.Hex())
	}
	if !rec.Status.CanTransitionTo(next) {
		return chainerrors.New(chainerrors.ErrCodeInvalidStatusTransition,
			"block %s: %s -> %s", hash.Short(), rec.Status, next)
	}
	rec.Status = next
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal header %s: %w", hash.Short(), err)
	}
	batch.Put(headerKey(hash), raw)
	return nil
}

// MustClose closes the underlying database provider.
func (c *GenericChainIndex) MustClose() {
	if err := c.provider.Close(); err != nil {
		logx.Error("CHAININDEX", "Failed to close provider: ", err)
	}
}
