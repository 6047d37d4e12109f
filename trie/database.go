package trie

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"chaincore/db"
	chainerrors "chaincore/errors"
	"chaincore/types"
)

// PrefixTrieNode namespaces trie nodes in the storage backend. The node hash
// follows the prefix, so node storage is content-addressed: equal content is
// stored once regardless of how many state roots reference it.
const PrefixTrieNode = "trn:"

// NodeKey returns the storage key for a trie node hash.
func NodeKey(hash types.Hash) []byte {
	key := make([]byte, len(PrefixTrieNode)+types.HashSize)
	copy(key, PrefixTrieNode)
	copy(key[len(PrefixTrieNode):], hash[:])
	return key
}

// Database provides read access to trie nodes persisted in the storage
// backend, with a shared read-through LRU cache of decoded nodes. Decoded
// nodes are immutable and safe to share across concurrent snapshots.
type Database struct {
	provider db.DatabaseProvider
	cache    *lru.Cache
}

// NewDatabase creates a trie database over the given provider.
func NewDatabase(provider db.DatabaseProvider, cacheSize int) (*Database, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}
	return &Database{provider: provider, cache: cache}, nil
}

// Open returns a read-only snapshot of the state committed under root.
// The zero root denotes the empty state. A missing root node means the
// backend lost data and is reported as trie corruption.
func (d *Database) Open(root types.Hash) (*Snapshot, error) {
	if !root.IsZero() {
		if _, err := d.loadNode(root, nil); err != nil {
			return nil, err
		}
	}
	return &Snapshot{db: d, root: root}, nil
}

// loadNode fetches and decodes a node by hash, consulting the staged overlay
// (if any) before cache and backend.
func (d *Database) loadNode(hash types.Hash, staged map[types.Hash][]byte) (interface{}, error) {
	if staged != nil {
		if raw, ok := staged[hash]; ok {
			return decodeNode(raw)
		}
	}
	if cached, ok := d.cache.Get(hash); ok {
		return cached, nil
	}
	raw, err := d.provider.Get(NodeKey(hash))
	if err != nil {
		return nil, chainerrors.Wrap(chainerrors.ErrCodeIO, err, "trie node read %s", hash.Short())
	}
	if raw == nil {
		return nil, chainerrors.New(chainerrors.ErrCodeTrieCorrupted, "missing trie node %s", hash.Hex())
	}
	node, err := decodeNode(raw)
	if err != nil {
		return nil, chainerrors.Wrap(chainerrors.ErrCodeTrieCorrupted, err, "undecodable trie node %s", hash.Hex())
	}
	d.cache.Add(hash, node)
	return node, nil
}

// Snapshot is an immutable, content-addressed view of the state at one root.
// Snapshots are cheap to copy and safe for concurrent reads; mutation goes
// through ApplyChanges, which produces a new root and never touches the
// receiver.
type Snapshot struct {
	db   *Database
	root types.Hash
}

// Root returns the state root this snapshot is anchored to.
func (s *Snapshot) Root() types.Hash {
	return s.root
}

// Read returns the value stored under key, or nil if the key is absent.
func (s *Snapshot) Read(key []byte) ([]byte, error) {
	if s.root.IsZero() {
		return nil, nil
	}
	ref := s.root
	rem := keyToNibbles(key)
	for {
		n, err := s.db.loadNode(ref, nil)
		if err != nil {
			return nil, err
		}
		switch node := n.(type) {
		case *leafNode:
			if commonPrefixLen(node.path, rem) == len(node.path) && len(node.path) == len(rem) {
				return append([]byte(nil), node.value...), nil
			}
			return nil, nil
		case *branchNode:
			if !hasNibblePrefix(rem, node.path) {
				return nil, nil
			}
			rem = rem[len(node.path):]
			if len(rem) == 0 {
				if !node.hasValue {
					return nil, nil
				}
				return append([]byte(nil), node.value...), nil
			}
			child := node.children[rem[0]]
			if child.IsZero() {
				return nil, nil
			}
			ref = child
			rem = rem[1:]
		default:
			return nil, chainerrors.New(chainerrors.ErrCodeTrieCorrupted, "unexpected node type at %s", ref.Hex())
		}
	}
}
