package types

import "sort"

// KeyValue is a single staged write. A nil value with Delete set is a
// tombstone removing the key.
type KeyValue struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// ChangeSet is an ordered sequence of staged writes. Order is significant for
// commit batches; helpers keep sets sorted by key where required.
type ChangeSet []KeyValue

// Put appends a write to the set.
func (cs *ChangeSet) Put(key, value []byte) {
	*cs = append(*cs, KeyValue{Key: key, Value: value})
}

// Del appends a tombstone to the set.
func (cs *ChangeSet) Del(key []byte) {
	*cs = append(*cs, KeyValue{Key: key, Delete: true})
}

// SortByKey sorts the set lexicographically by key in place.
func (cs ChangeSet) SortByKey() {
	sort.Slice(cs, func(i, j int) bool {
		return string(cs[i].Key) < string(cs[j].Key)
	})
}
