package interfaces

import (
	"chaincore/trie"
	"chaincore/types"
)

// Executor is the runtime-execution collaborator. It runs a block's
// extrinsics against the parent state snapshot and returns the resulting
// state changes. Execution is deterministic; a deterministic failure must be
// reported as an execution-trap error (errors.ErrExecutionTrap), which the
// import pipeline maps to a terminal rejection of the block.
type Executor interface {
	Execute(parent *trie.Snapshot, extrinsics []types.Extrinsic) (types.ChangeSet, error)
}
