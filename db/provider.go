package db

// DatabaseProvider abstracts the low-level key/value storage backend so the
// chain index and trie can work against LevelDB, Bolt or an in-memory store
// without knowing implementation details.
type DatabaseProvider interface {
	// Get retrieves a value by key. Returns nil (no error) when the key is
	// absent.
	Get(key []byte) ([]byte, error)

	// GetBatch retrieves multiple values by keys in a single operation.
	// Absent keys are omitted from the result map.
	GetBatch(keys [][]byte) (map[string][]byte, error)

	// Put stores a key-value pair
	Put(key, value []byte) error

	// Delete removes a key-value pair
	Delete(key []byte) error

	// Has checks if a key exists
	Has(key []byte) (bool, error)

	// Close closes the database connection
	Close() error

	// Batch returns a new batch for atomic operations
	Batch() DatabaseBatch
}

// IterableProvider extends DatabaseProvider with iteration capabilities
type IterableProvider interface {
	DatabaseProvider

	// IteratePrefix iterates over all key-value pairs with the given prefix
	// The callback function should return false to stop iteration
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error
}

// DatabaseBatch stages writes that are applied atomically: either every
// operation in the batch becomes durable, or none does.
type DatabaseBatch interface {
	// Put adds a key-value pair to the batch
	Put(key, value []byte)

	// Delete adds a deletion to the batch
	Delete(key []byte)

	// Write commits all operations in the batch
	Write() error

	// Reset clears the batch
	Reset()

	// Close releases batch resources
	Close()
}
