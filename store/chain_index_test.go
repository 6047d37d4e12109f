package store

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"chaincore/db"
	chainerrors "chaincore/errors"
	"chaincore/types"
)

func newTestIndex(t *testing.T) (*GenericChainIndex, *db.MemoryProvider) {
	t.Helper()
	provider := db.NewMemoryProvider()
	idx, err := NewGenericChainIndex(provider)
	if err != nil {
		t.Fatalf("failed to open chain index: %v", err)
	}
	return idx, provider
}

func testRecord(parent types.Hash, number uint64, status types.BlockStatus) *HeaderRecord {
	header := types.Header{
		ParentHash: parent,
		Number:     number,
		StateRoot:  types.HashBytes([]byte{byte(number)}),
	}
	return &HeaderRecord{
		Hash:   header.Hash(),
		Header: header,
		Status: status,
		Weight: uint256.NewInt(number + 1),
	}
}

func TestChainIndexInsertAndLookup(t *testing.T) {
	idx, _ := newTestIndex(t)

	rec := testRecord(types.ZeroHash, 0, types.StatusFinalized)
	body := []types.Extrinsic{types.Extrinsic("put:a=1")}
	commit := &Commit{
		Header:    rec,
		Body:      body,
		Canonical: map[uint64]types.Hash{0: rec.Hash},
		Best:      &rec.Hash, BestWeight: rec.Weight,
		Finalized: &rec.Hash,
	}
	if err := idx.ApplyCommit(commit); err != nil {
		t.Fatalf("apply commit: %v", err)
	}

	got, err := idx.Lookup(rec.Hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.Status != types.StatusFinalized || got.Header.Number != 0 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Weight.Cmp(rec.Weight) != 0 {
		t.Errorf("weight not persisted: %s", got.Weight)
	}

	storedBody, err := idx.Body(rec.Hash)
	if err != nil || len(storedBody) != 1 {
		t.Errorf("body not persisted: %v (%v)", storedBody, err)
	}

	if idx.BestBlock() != rec.Hash || idx.FinalizedBlock() != rec.Hash {
		t.Error("pointers not moved after commit")
	}

	hash, ok, err := idx.HashByNumber(0)
	if err != nil || !ok || hash != rec.Hash {
		t.Errorf("canonical index miss: %s %t %v", hash.Short(), ok, err)
	}

	if unknown, err := idx.Lookup(types.HashBytes([]byte("nope"))); err != nil || unknown != nil {
		t.Errorf("unknown hash should yield nil, nil; got %v, %v", unknown, err)
	}
}

func TestChainIndexChildrenLinkage(t *testing.T) {
	idx, _ := newTestIndex(t)

	genesis := testRecord(types.ZeroHash, 0, types.StatusFinalized)
	childA := testRecord(genesis.Hash, 1, types.StatusCanonical)
	childB := testRecord(genesis.Hash, 1, types.StatusValid)
	childB.Header.StateRoot = types.HashBytes([]byte("fork"))
	childB.Hash = childB.Header.Hash()

	for _, rec := range []*HeaderRecord{genesis, childA, childB} {
		if err := idx.ApplyCommit(&Commit{Header: rec}); err != nil {
			t.Fatalf("apply commit for %s: %v", rec.Hash.Short(), err)
		}
	}

	children, err := idx.ChildrenOf(genesis.Hash)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}

	// Re-committing the same header must not duplicate the child link.
	if err := idx.ApplyCommit(&Commit{Header: childA}); err != nil {
		t.Fatalf("re-commit: %v", err)
	}
	children, _ = idx.ChildrenOf(genesis.Hash)
	if len(children) != 2 {
		t.Errorf("child list duplicated: %v", children)
	}
}

func TestChainIndexStatusTransitions(t *testing.T) {
	idx, _ := newTestIndex(t)

	rec := testRecord(types.ZeroHash, 0, types.StatusValid)
	if err := idx.ApplyCommit(&Commit{Header: rec}); err != nil {
		t.Fatalf("apply commit: %v", err)
	}

	if err := idx.ApplyCommit(&Commit{Status: map[types.Hash]types.BlockStatus{rec.Hash: types.StatusCanonical}}); err != nil {
		t.Fatalf("valid transition rejected: %v", err)
	}
	got, _ := idx.Lookup(rec.Hash)
	if got.Status != types.StatusCanonical {
		t.Errorf("status not updated, got %s", got.Status)
	}

	// Backward transition fails the whole commit.
	err := idx.ApplyCommit(&Commit{Status: map[types.Hash]types.BlockStatus{rec.Hash: types.StatusQueued}})
	if !errors.Is(err, chainerrors.ErrInvalidStatusTransition) {
		t.Fatalf("expected invalid status transition, got %v", err)
	}
	got, _ = idx.Lookup(rec.Hash)
	if got.Status != types.StatusCanonical {
		t.Error("rejected commit must not change stored status")
	}

	// Unknown block fails too.
	err = idx.ApplyCommit(&Commit{Status: map[types.Hash]types.BlockStatus{types.HashBytes([]byte("ghost")): types.StatusValid}})
	if !errors.Is(err, chainerrors.ErrInvalidStatusTransition) {
		t.Fatalf("expected invalid status transition for unknown block, got %v", err)
	}
}

func TestChainIndexCanonicalDrop(t *testing.T) {
	idx, _ := newTestIndex(t)

	h1 := types.HashBytes([]byte("one"))
	h2 := types.HashBytes([]byte("two"))
	if err := idx.ApplyCommit(&Commit{Canonical: map[uint64]types.Hash{1: h1, 2: h2}}); err != nil {
		t.Fatalf("apply commit: %v", err)
	}
	if err := idx.ApplyCommit(&Commit{CanonicalDrop: []uint64{2}}); err != nil {
		t.Fatalf("apply drop: %v", err)
	}

	if _, ok, _ := idx.HashByNumber(1); !ok {
		t.Error("number 1 should remain canonical")
	}
	if _, ok, _ := idx.HashByNumber(2); ok {
		t.Error("number 2 should have been dropped")
	}
}

func TestChainIndexPointersSurviveReopen(t *testing.T) {
	idx, provider := newTestIndex(t)

	rec := testRecord(types.ZeroHash, 0, types.StatusFinalized)
	commit := &Commit{
		Header: rec,
		Best:   &rec.Hash, BestWeight: rec.Weight,
		Finalized: &rec.Hash,
	}
	if err := idx.ApplyCommit(commit); err != nil {
		t.Fatalf("apply commit: %v", err)
	}

	reopened, err := NewGenericChainIndex(provider)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.BestBlock() != rec.Hash {
		t.Error("best pointer lost across reopen")
	}
	if reopened.FinalizedBlock() != rec.Hash {
		t.Error("finalized pointer lost across reopen")
	}
	if reopened.BestWeight().Cmp(rec.Weight) != 0 {
		t.Errorf("best weight lost across reopen: %s", reopened.BestWeight())
	}
}

func TestChainIndexFailedBatchLeavesPointersUntouched(t *testing.T) {
	idx, provider := newTestIndex(t)

	rec := testRecord(types.ZeroHash, 0, types.StatusCanonical)
	provider.FailNextWrites(1)
	err := idx.ApplyCommit(&Commit{Header: rec, Best: &rec.Hash, BestWeight: rec.Weight})
	if !errors.Is(err, chainerrors.ErrIO) {
		t.Fatalf("expected i/o error, got %v", err)
	}

	if !idx.BestBlock().IsZero() {
		t.Error("failed commit must not move the cached best pointer")
	}
	if got, _ := idx.Lookup(rec.Hash); got != nil {
		t.Error("failed commit must not persist the header")
	}
}
