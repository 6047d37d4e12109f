package trie

import (
	"chaincore/types"
)

// ApplyChanges computes the state produced by applying the change set on top
// of this snapshot. It is pure: the receiver is untouched and nothing is
// written to the backend. The returned change set holds the new trie nodes,
// keyed for the storage backend, for the caller to include in its atomic
// commit batch.
func (s *Snapshot) ApplyChanges(changes types.ChangeSet) (types.Hash, types.ChangeSet, error) {
	ctx := &applyCtx{db: s.db, staged: make(map[types.Hash][]byte)}

	root := s.root
	var err error
	for _, change := range changes {
		rem := keyToNibbles(change.Key)
		if change.Delete {
			root, err = ctx.remove(root, rem)
		} else {
			root, err = ctx.insert(root, rem, change.Value)
		}
		if err != nil {
			return types.ZeroHash, nil, err
		}
	}

	var out types.ChangeSet
	if err := ctx.collect(root, &out); err != nil {
		return types.ZeroHash, nil, err
	}
	return root, out, nil
}

// applyCtx accumulates freshly built nodes during one ApplyChanges call. The
// staged overlay is consulted on node loads so later changes see earlier ones.
type applyCtx struct {
	db     *Database
	staged map[types.Hash][]byte
}

func (c *applyCtx) load(ref types.Hash) (interface{}, error) {
	return c.db.loadNode(ref, c.staged)
}

// stage encodes a node, stores it in the overlay and returns its content hash.
func (c *applyCtx) stage(n interface{}) types.Hash {
	var raw []byte
	switch node := n.(type) {
	case *leafNode:
		raw = encodeLeaf(node)
	case *branchNode:
		raw = encodeBranch(node)
	}
	hash := types.HashBytes(raw)
	c.staged[hash] = raw
	return hash
}

func copyNibbles(n []byte) []byte {
	return append([]byte(nil), n...)
}

// insert returns the hash of the subtree at ref after setting rem to value.
func (c *applyCtx) insert(ref types.Hash, rem []byte, value []byte) (types.Hash, error) {
	value = append([]byte(nil), value...)
	if ref.IsZero() {
		return c.stage(&leafNode{path: copyNibbles(rem), value: value}), nil
	}

	n, err := c.load(ref)
	if err != nil {
		return types.ZeroHash, err
	}

	switch node := n.(type) {
	case *leafNode:
		if len(node.path) == len(rem) && commonPrefixLen(node.path, rem) == len(rem) {
			return c.stage(&leafNode{path: node.path, value: value}), nil
		}
		return c.splitLeaf(node, rem, value), nil

	case *branchNode:
		if hasNibblePrefix(rem, node.path) {
			r2 := rem[len(node.path):]
			updated := *node
			if len(r2) == 0 {
				updated.value = value
				updated.hasValue = true
				return c.stage(&updated), nil
			}
			child, err := c.insert(node.children[r2[0]], r2[1:], value)
			if err != nil {
				return types.ZeroHash, err
			}
			updated.children[r2[0]] = child
			return c.stage(&updated), nil
		}
		return c.splitBranch(node, rem, value), nil
	}
	return ref, nil
}

// splitLeaf replaces a leaf with a branch at the diverging nibble, keeping
// the old value and adding the new one.
func (c *applyCtx) splitLeaf(old *leafNode, rem, value []byte) types.Hash {
	cp := commonPrefixLen(old.path, rem)
	branch := &branchNode{path: copyNibbles(rem[:cp])}

	if len(old.path) == cp {
		branch.value = old.value
		branch.hasValue = true
	} else {
		branch.children[old.path[cp]] = c.stage(&leafNode{path: copyNibbles(old.path[cp+1:]), value: old.value})
	}
	if len(rem) == cp {
		branch.value = value
		branch.hasValue = true
	} else {
		branch.children[rem[cp]] = c.stage(&leafNode{path: copyNibbles(rem[cp+1:]), value: value})
	}
	return c.stage(branch)
}

// splitBranch shortens a branch whose compressed prefix diverges from the
// inserted key, pushing the old branch one level down.
func (c *applyCtx) splitBranch(old *branchNode, rem, value []byte) types.Hash {
	cp := commonPrefixLen(old.path, rem)

	lowered := *old
	lowered.path = copyNibbles(old.path[cp+1:])
	loweredRef := c.stage(&lowered)

	top := &branchNode{path: copyNibbles(old.path[:cp])}
	top.children[old.path[cp]] = loweredRef
	if len(rem) == cp {
		top.value = value
		top.hasValue = true
	} else {
		top.children[rem[cp]] = c.stage(&leafNode{path: copyNibbles(rem[cp+1:]), value: value})
	}
	return c.stage(top)
}

// remove returns the hash of the subtree at ref after deleting rem, or the
// zero hash when the subtree becomes empty. Absent keys leave the subtree
// unchanged.
func (c *applyCtx) remove(ref types.Hash, rem []byte) (types.Hash, error) {
	if ref.IsZero() {
		return types.ZeroHash, nil
	}

	n, err := c.load(ref)
	if err != nil {
		return types.ZeroHash, err
	}

	switch node := n.(type) {
	case *leafNode:
		if len(node.path) == len(rem) && commonPrefixLen(node.path, rem) == len(rem) {
			return types.ZeroHash, nil
		}
		return ref, nil

	case *branchNode:
		if !hasNibblePrefix(rem, node.path) {
			return ref, nil
		}
		r2 := rem[len(node.path):]
		updated := *node
		if len(r2) == 0 {
			if !node.hasValue {
				return ref, nil
			}
			updated.value = nil
			updated.hasValue = false
		} else {
			childRef := node.children[r2[0]]
			if childRef.IsZero() {
				return ref, nil
			}
			newChild, err := c.remove(childRef, r2[1:])
			if err != nil {
				return types.ZeroHash, err
			}
			if newChild == childRef {
				return ref, nil
			}
			updated.children[r2[0]] = newChild
		}
		return c.collapse(&updated)
	}
	return ref, nil
}

// collapse normalizes a branch after a removal: empty branches vanish,
// value-only branches become leaves, and single-child branches merge their
// prefix into the child.
func (c *applyCtx) collapse(b *branchNode) (types.Hash, error) {
	count := b.childCount()
	if count == 0 {
		if !b.hasValue {
			return types.ZeroHash, nil
		}
		return c.stage(&leafNode{path: b.path, value: b.value}), nil
	}
	if count == 1 && !b.hasValue {
		idx := b.soleChild()
		childRef := b.children[idx]
		child, err := c.load(childRef)
		if err != nil {
			return types.ZeroHash, err
		}
		merged := append(copyNibbles(b.path), byte(idx))
		switch childNode := child.(type) {
		case *leafNode:
			return c.stage(&leafNode{path: append(merged, childNode.path...), value: childNode.value}), nil
		case *branchNode:
			lifted := *childNode
			lifted.path = append(merged, childNode.path...)
			return c.stage(&lifted), nil
		}
	}
	return c.stage(b), nil
}

// collect walks the new root and emits every staged node still reachable,
// skipping intermediates orphaned by later changes in the same batch.
// Unchanged subtrees are referenced by hash and not descended into.
func (c *applyCtx) collect(ref types.Hash, out *types.ChangeSet) error {
	if ref.IsZero() {
		return nil
	}
	raw, ok := c.staged[ref]
	if !ok {
		return nil
	}
	delete(c.staged, ref) // deduplicate shared subtrees
	out.Put(NodeKey(ref), raw)

	n, err := decodeNode(raw)
	if err != nil {
		return err
	}
	if branch, ok := n.(*branchNode); ok {
		for _, child := range branch.children {
			if err := c.collect(child, out); err != nil {
				return err
			}
		}
	}
	return nil
}
