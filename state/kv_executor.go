package state

import (
	"bytes"

	chainerrors "chaincore/errors"
	"chaincore/trie"
	"chaincore/types"
)

// KVExecutor is a reference runtime executor interpreting extrinsics as
// plain key-value commands:
//
//	put:<key>=<value>
//	del:<key>
//
// It stages all writes in an Overlay, one transaction per extrinsic, so a
// malformed extrinsic rolls back cleanly before the trap is reported.
// Real nodes supply their own executor; this one backs tests, examples and
// throwaway chains.
type KVExecutor struct{}

// NewKVExecutor creates a reference key-value executor.
func NewKVExecutor() *KVExecutor {
	return &KVExecutor{}
}

// Execute applies the extrinsics on top of the parent snapshot and returns
// the drained change set.
func (e *KVExecutor) Execute(parent *trie.Snapshot, extrinsics []types.Extrinsic) (types.ChangeSet, error) {
	overlay := NewOverlay()

	for _, ext := range extrinsics {
		overlay.StartTransaction()
		if err := e.apply(overlay, ext); err != nil {
			overlay.RollbackTransaction()
			return nil, err
		}
		overlay.CommitTransaction()
	}
	return overlay.Drain(), nil
}

func (e *KVExecutor) apply(overlay *Overlay, ext types.Extrinsic) error {
	switch {
	case bytes.HasPrefix(ext, []byte("put:")):
		rest := ext[len("put:"):]
		sep := bytes.IndexByte(rest, '=')
		if sep <= 0 {
			return chainerrors.New(chainerrors.ErrCodeExecutionTrap, "malformed put extrinsic")
		}
		overlay.Set(rest[:sep], rest[sep+1:])
		return nil

	case bytes.HasPrefix(ext, []byte("del:")):
		key := ext[len("del:"):]
		if len(key) == 0 {
			return chainerrors.New(chainerrors.ErrCodeExecutionTrap, "malformed del extrinsic")
		}
		overlay.Delete(key)
		return nil

	default:
		return chainerrors.New(chainerrors.ErrCodeExecutionTrap, "unknown extrinsic command")
	}
}
