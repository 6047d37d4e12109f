package state

import (
	"fmt"
	"sort"

	"chaincore/types"
)

// overlayValue is a staged write. A deleted entry shadows any value beneath
// it, in a lower layer or in the backing snapshot.
type overlayValue struct {
	value   []byte
	deleted bool
}

// Overlay stages uncommitted state changes on top of a read-only snapshot
// while a block executes. Writes land in the innermost open transaction
// layer; committing a layer folds it into its parent, rolling back discards
// it. Drain flattens everything into the ordered change set handed to the
// trie.
//
// An Overlay is single-writer and not safe for concurrent use.
type Overlay struct {
	committed map[string]overlayValue
	layers    []map[string]overlayValue
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{committed: make(map[string]overlayValue)}
}

// Get returns the staged value for key. The second return reports whether
// the overlay holds an entry at all; a (nil, true) result is a staged
// deletion. When it returns (nil, false) the caller should fall through to
// the backing snapshot.
func (o *Overlay) Get(key []byte) ([]byte, bool) {
	k := string(key)
	for i := len(o.layers) - 1; i >= 0; i-- {
		if v, ok := o.layers[i][k]; ok {
			return v.value, true
		}
	}
	if v, ok := o.committed[k]; ok {
		return v.value, true
	}
	return nil, false
}

// Set stages a write for key.
func (o *Overlay) Set(key, value []byte) {
	o.top()[string(key)] = overlayValue{value: append([]byte(nil), value...)}
}

// Delete stages a tombstone for key.
func (o *Overlay) Delete(key []byte) {
	o.top()[string(key)] = overlayValue{deleted: true}
}

// StartTransaction opens a nested layer. Writes made after this call can be
// discarded with RollbackTransaction or folded down with CommitTransaction.
func (o *Overlay) StartTransaction() {
	o.layers = append(o.layers, make(map[string]overlayValue))
}

// CommitTransaction folds the innermost layer into its parent.
func (o *Overlay) CommitTransaction() error {
	if len(o.layers) == 0 {
		return fmt.Errorf("no open transaction")
	}
	layer := o.layers[len(o.layers)-1]
	o.layers = o.layers[:len(o.layers)-1]
	parent := o.committed
	if len(o.layers) > 0 {
		parent = o.layers[len(o.layers)-1]
	}
	for k, v := range layer {
		parent[k] = v
	}
	return nil
}

// RollbackTransaction discards the innermost layer.
func (o *Overlay) RollbackTransaction() error {
	if len(o.layers) == 0 {
		return fmt.Errorf("no open transaction")
	}
	o.layers = o.layers[:len(o.layers)-1]
	return nil
}

// Depth returns the number of open transaction layers.
func (o *Overlay) Depth() int {
	return len(o.layers)
}

// Drain flattens the overlay into a change set ordered by key. Open
// transaction layers are committed first; the overlay is empty afterwards.
func (o *Overlay) Drain() types.ChangeSet {
	for len(o.layers) > 0 {
		o.CommitTransaction()
	}

	keys := make([]string, 0, len(o.committed))
	for k := range o.committed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(types.ChangeSet, 0, len(keys))
	for _, k := range keys {
		v := o.committed[k]
		if v.deleted {
			out.Del([]byte(k))
		} else {
			out.Put([]byte(k), v.value)
		}
	}
	o.committed = make(map[string]overlayValue)
	return out
}

// top returns the map new writes should land in.
func (o *Overlay) top() map[string]overlayValue {
	if len(o.layers) > 0 {
		return o.layers[len(o.layers)-1]
	}
	return o.committed
}
