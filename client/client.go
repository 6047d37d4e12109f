package client

import (
	"context"
	"fmt"

	"chaincore/config"
	"chaincore/db"
	chainerrors "chaincore/errors"
	"chaincore/events"
	"chaincore/importer"
	"chaincore/interfaces"
	"chaincore/logx"
	"chaincore/store"
	"chaincore/trie"
	"chaincore/types"
)

// Client composes the storage backend, chain index, state trie, import
// pipeline and notification bus into the single surface consumed by the
// consensus engine, transaction pool and RPC layer. Reads run concurrently
// against immutable snapshots; the only write entry points are ImportBlock
// and FinalizeBlock, serialized by the pipeline.
type Client struct {
	provider db.DatabaseProvider
	index    *store.GenericChainIndex
	trieDB   *trie.Database
	bus      *events.EventBus
	pipeline *importer.Pipeline
}

// New opens a client backend per the given configuration. The executor and
// fork-choice collaborators are supplied by the embedding node.
func New(cfg *config.Config, tuning *config.TuningConfig, executor interfaces.Executor, forkChoice interfaces.ForkChoice) (*Client, error) {
	provider, err := db.NewProvider(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	c, err := NewWithProvider(provider, tuning, executor, forkChoice)
	if err != nil {
		provider.Close()
		return nil, err
	}
	return c, nil
}

// NewWithProvider wires a client over an already-open storage provider.
func NewWithProvider(provider db.DatabaseProvider, tuning *config.TuningConfig, executor interfaces.Executor, forkChoice interfaces.ForkChoice) (*Client, error) {
	if executor == nil || forkChoice == nil {
		return nil, fmt.Errorf("executor and fork choice collaborators are required")
	}
	if tuning == nil {
		tuning = config.DefaultTuning()
	}
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}

	index, err := store.NewGenericChainIndex(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain index: %w", err)
	}
	trieDB, err := trie.NewDatabase(provider, tuning.TrieCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open trie database: %w", err)
	}

	bus := events.NewEventBus(tuning.NotifyQueueSize)
	base, max := tuning.CommitBackoff()
	retry := importer.RetryPolicy{
		Attempts:    tuning.CommitRetries,
		BaseBackoff: base,
		MaxBackoff:  max,
	}
	pipeline := importer.NewPipeline(index, trieDB, executor, forkChoice, bus, retry)

	logx.Info("CLIENT", fmt.Sprintf("Client backend opened | best=%s finalized=%s",
		index.BestBlock().Short(), index.FinalizedBlock().Short()))

	return &Client{
		provider: provider,
		index:    index,
		trieDB:   trieDB,
		bus:      bus,
		pipeline: pipeline,
	}, nil
}

// EnsureGenesis imports the given genesis block when the store is fresh. On
// an already-initialized store it verifies the stored genesis matches and
// otherwise refuses to open a different chain.
func (c *Client) EnsureGenesis(ctx context.Context, genesis *types.Block) error {
	existing, ok, err := c.index.HashByNumber(0)
	if err != nil {
		return err
	}
	if ok {
		if existing != genesis.Hash() {
			return fmt.Errorf("store holds a different chain: genesis %s, expected %s",
				existing.Short(), genesis.Hash().Short())
		}
		return nil
	}
	_, err = c.pipeline.ImportBlock(ctx, genesis)
	return err
}

// ImportBlock is the single write entry point for new blocks.
func (c *Client) ImportBlock(ctx context.Context, block *types.Block) (*importer.ImportResult, error) {
	return c.pipeline.ImportBlock(ctx, block)
}

// FinalizeBlock applies a finality signal from the consensus collaborator.
func (c *Client) FinalizeBlock(ctx context.Context, hash types.Hash) error {
	return c.pipeline.FinalizeBlock(ctx, hash)
}

// Halted reports whether imports stopped after a fatal storage error.
func (c *Client) Halted() bool {
	return c.pipeline.Halted()
}

// BlockByHash returns the full block stored under hash.
func (c *Client) BlockByHash(hash types.Hash) (*types.Block, error) {
	rec, err := c.index.Lookup(hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, chainerrors.ErrBlockNotFound
	}
	body, err := c.index.Body(hash)
	if err != nil {
		return nil, err
	}
	return &types.Block{Header: rec.Header, Extrinsics: body}, nil
}

// BlockByNumber returns the canonical block at the given height.
func (c *Client) BlockByNumber(number uint64) (*types.Block, error) {
	hash, ok, err := c.index.HashByNumber(number)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, chainerrors.ErrBlockNotFound
	}
	return c.BlockByHash(hash)
}

// HeaderByHash returns the header record (header, status, weight) for hash,
// or nil when unknown.
func (c *Client) HeaderByHash(hash types.Hash) (*store.HeaderRecord, error) {
	return c.index.Lookup(hash)
}

// StatusOf returns the lifecycle status of hash, StatusUnknown when the
// block is not stored.
func (c *Client) StatusOf(hash types.Hash) (types.BlockStatus, error) {
	rec, err := c.index.Lookup(hash)
	if err != nil {
		return types.StatusUnknown, err
	}
	if rec == nil {
		return types.StatusUnknown, nil
	}
	return rec.Status, nil
}

// StateAt opens a read-only state snapshot at the given block. Pruned blocks
// no longer guarantee state availability and are refused.
func (c *Client) StateAt(hash types.Hash) (*trie.Snapshot, error) {
	rec, err := c.index.Lookup(hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, chainerrors.ErrBlockNotFound
	}
	if rec.Status == types.StatusPruned {
		return nil, chainerrors.New(chainerrors.ErrCodeBlockNotFound,
			"state of pruned block %s is unavailable", hash.Short())
	}
	return c.trieDB.Open(rec.Header.StateRoot)
}

// BestBlock returns the current best block hash.
func (c *Client) BestBlock() types.Hash {
	return c.index.BestBlock()
}

// FinalizedBlock returns the latest finalized block hash.
func (c *Client) FinalizedBlock() types.Hash {
	return c.index.FinalizedBlock()
}

// ChildrenOf returns the known children of a block.
func (c *Client) ChildrenOf(hash types.Hash) ([]types.Hash, error) {
	return c.index.ChildrenOf(hash)
}

// SubscribeImport subscribes to import notifications.
func (c *Client) SubscribeImport() (events.SubscriberID, <-chan events.ChainEvent) {
	return c.bus.Subscribe(events.EventBlockImported)
}

// SubscribeFinality subscribes to finality notifications.
func (c *Client) SubscribeFinality() (events.SubscriberID, <-chan events.ChainEvent) {
	return c.bus.Subscribe(events.EventBlockFinalized)
}

// Unsubscribe cancels a subscription.
func (c *Client) Unsubscribe(id events.SubscriberID) bool {
	return c.bus.Unsubscribe(id)
}

// Close releases the underlying storage.
func (c *Client) Close() error {
	return c.provider.Close()
}
