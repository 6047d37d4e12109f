package db

import (
	"bytes"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	chainerrors "chaincore/errors"
)

// bucketName is the single bucket holding all backend data. Key prefixes
// partition the keyspace the same way they do for the other providers.
var bucketName = []byte("chaincore")

// BoltProvider implements DatabaseProvider on a single-file bbolt database.
// Bolt transactions give the same atomic batch guarantee LevelDB batches do.
type BoltProvider struct {
	once sync.Once
	db   *bolt.DB
}

// NewBoltProvider opens (creating if necessary) a bbolt database file.
func NewBoltProvider(path string) (DatabaseProvider, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltProvider{db: db}, nil
}

// Get retrieves a value by key
func (p *BoltProvider) Get(key []byte) ([]byte, error) {
	var out []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get(key); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, chainerrors.Wrap(chainerrors.ErrCodeIO, err, "bolt get")
	}
	return out, nil
}

// GetBatch retrieves multiple values in a single read transaction
func (p *BoltProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := p.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, key := range keys {
			if v := bucket.Get(key); v != nil {
				result[string(key)] = append([]byte(nil), v...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, chainerrors.Wrap(chainerrors.ErrCodeIO, err, "bolt multi-get")
	}
	return result, nil
}

// Put stores a key-value pair
func (p *BoltProvider) Put(key, value []byte) error {
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
	if err != nil {
		return chainerrors.Wrap(chainerrors.ErrCodeIO, err, "bolt put")
	}
	return nil
}

// Delete removes a key-value pair
func (p *BoltProvider) Delete(key []byte) error {
	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
	if err != nil {
		return chainerrors.Wrap(chainerrors.ErrCodeIO, err, "bolt delete")
	}
	return nil
}

// Has checks if a key exists
func (p *BoltProvider) Has(key []byte) (bool, error) {
	var ok bool
	err := p.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketName).Get(key) != nil
		return nil
	})
	if err != nil {
		return false, chainerrors.Wrap(chainerrors.ErrCodeIO, err, "bolt has")
	}
	return ok, nil
}

// Close closes the database file
func (p *BoltProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

// Batch returns a new batch applied in one bolt write transaction
func (p *BoltProvider) Batch() DatabaseBatch {
	return &BoltBatch{db: p.db}
}

// IteratePrefix iterates over all key-value pairs with the given prefix
func (p *BoltProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	err := p.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !callback(k, v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return chainerrors.Wrap(chainerrors.ErrCodeIO, err, "bolt iterate")
	}
	return nil
}

type boltOp struct {
	key    []byte
	value  []byte
	delete bool
}

// BoltBatch implements DatabaseBatch for bbolt
type BoltBatch struct {
	db  *bolt.DB
	ops []boltOp
}

// Put adds a key-value pair to the batch
func (b *BoltBatch) Put(key, value []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete adds a deletion to the batch
func (b *BoltBatch) Delete(key []byte) {
	b.ops = append(b.ops, boltOp{key: append([]byte(nil), key...), delete: true})
}

// Write commits all staged operations in a single write transaction
func (b *BoltBatch) Write() error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for _, op := range b.ops {
			if op.delete {
				if err := bucket.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chainerrors.Wrap(chainerrors.ErrCodeIO, err, "bolt batch write")
	}
	return nil
}

// Reset clears the batch
func (b *BoltBatch) Reset() {
	b.ops = b.ops[:0]
}

// Close releases batch resources
func (b *BoltBatch) Close() {
	b.ops = nil
}
