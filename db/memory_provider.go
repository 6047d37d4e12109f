package db

import (
	"bytes"
	"sort"
	"sync"

	chainerrors "chaincore/errors"
)

// MemoryProvider implements DatabaseProvider with an in-process map. It backs
// tests and throwaway chains; contents do not survive the process.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string][]byte

	// failWrites makes the next N batch writes fail with an i/o error. Used
	// by tests to exercise the commit retry path.
	failWrites int
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string][]byte)}
}

// FailNextWrites makes the next n batch writes return an i/o error.
func (p *MemoryProvider) FailNextWrites(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWrites = n
}

// Len returns the number of stored keys.
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}

// Get retrieves a value by key
func (p *MemoryProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// GetBatch retrieves multiple values by keys
func (p *MemoryProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if v, ok := p.data[string(key)]; ok {
			result[string(key)] = append([]byte(nil), v...)
		}
	}
	return result, nil
}

// Put stores a key-value pair
func (p *MemoryProvider) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete removes a key-value pair
func (p *MemoryProvider) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, string(key))
	return nil
}

// Has checks if a key exists
func (p *MemoryProvider) Has(key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.data[string(key)]
	return ok, nil
}

// Close is a no-op for the memory provider
func (p *MemoryProvider) Close() error {
	return nil
}

// Batch returns a new batch applied under one lock acquisition
func (p *MemoryProvider) Batch() DatabaseBatch {
	return &memoryBatch{provider: p}
}

// IteratePrefix iterates over all key-value pairs with the given prefix in
// key order.
func (p *MemoryProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	p.mu.RLock()
	keys := make([]string, 0)
	for k := range p.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = p.data[k]
	}
	p.mu.RUnlock()

	for _, k := range keys {
		if !callback([]byte(k), snapshot[k]) {
			break
		}
	}
	return nil
}

type memoryBatch struct {
	provider *MemoryProvider
	ops      []boltOp
}

func (b *memoryBatch) Put(key, value []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *memoryBatch) Delete(key []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), delete: true})
}

// Write applies all staged operations atomically under the provider lock
func (b *memoryBatch) Write() error {
	p := b.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWrites > 0 {
		p.failWrites--
		return chainerrors.New(chainerrors.ErrCodeIO, "injected write failure")
	}
	for _, op := range b.ops {
		if op.delete {
			delete(p.data, string(op.key))
			continue
		}
		p.data[string(op.key)] = op.value
	}
	return nil
}

func (b *memoryBatch) Reset() {
	b.ops = b.ops[:0]
}

func (b *memoryBatch) Close() {
	b.ops = nil
}
