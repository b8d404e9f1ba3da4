package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("storage: write in read-only transaction")

// Store is the transactional key-value store backing the order book.
// Every external call runs inside exactly one Update or View.
type Store struct {
	db *pebble.DB
}

// Open opens a Pebble database at the given path
func Open(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10, // 512KB
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// OpenMem opens a store on an in-memory filesystem. Used by tests and dry runs.
func OpenMem() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a read-write transaction. The transaction commits
// only if fn returns nil; otherwise every write made by fn is discarded.
func (s *Store) Update(fn func(tx *Tx) error) error {
	batch := s.db.NewIndexedBatch()
	tx := &Tx{batch: batch}
	if err := fn(tx); err != nil {
		_ = batch.Close()
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		_ = batch.Close()
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return batch.Close()
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	batch := s.db.NewIndexedBatch()
	defer batch.Close()
	return fn(&Tx{batch: batch, readOnly: true})
}

// Tx is a single all-or-nothing unit of work. Reads observe the
// transaction's own pending writes.
type Tx struct {
	batch    *pebble.Batch
	readOnly bool
}

// Get returns a copy of the value stored at key, or nil if absent.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	val, closer, err := tx.batch.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Has reports whether key is present.
func (tx *Tx) Has(key []byte) (bool, error) {
	val, err := tx.Get(key)
	return val != nil, err
}

// Set stores value at key.
func (tx *Tx) Set(key, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return tx.batch.Set(key, value, nil)
}

// Delete removes key. Deleting an absent key is a no-op.
func (tx *Tx) Delete(key []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return tx.batch.Delete(key, nil)
}

// GetJSON loads the JSON value at key into v. It reports false if the key is absent.
func (tx *Tx) GetJSON(key []byte, v any) (bool, error) {
	data, err := tx.Get(key)
	if err != nil || data == nil {
		return false, err
	}
	if err := DecodeJSON(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v as JSON at key.
func (tx *Tx) SetJSON(key []byte, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return tx.Set(key, data)
}

// KV is a key/value pair returned by prefix scans.
type KV struct {
	Key   []byte
	Value []byte
}

// First returns the lowest key under prefix.
func (tx *Tx) First(prefix []byte) (KV, bool, error) {
	kvs, err := tx.Scan(prefix, 1)
	if err != nil || len(kvs) == 0 {
		return KV{}, false, err
	}
	return kvs[0], true, nil
}

// Scan returns up to limit pairs under prefix in key order. limit <= 0 means no limit.
func (tx *Tx) Scan(prefix []byte, limit int) ([]KV, error) {
	iter, err := tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: KeyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []KV
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, KV{
			Key:   append([]byte(nil), iter.Key()...),
			Value: append([]byte(nil), iter.Value()...),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}
	return out, nil
}

// NextSequence increments and returns the named counter.
func (tx *Tx) NextSequence(name string) (uint64, error) {
	key := Key(PrefixSequence, []byte(name))
	data, err := tx.Get(key)
	if err != nil {
		return 0, err
	}
	var cur uint64
	if data != nil {
		if cur, err = Uint64FromKey(data); err != nil {
			return 0, err
		}
	}
	cur++
	if err := tx.Set(key, Uint64Key(cur)); err != nil {
		return 0, err
	}
	return cur, nil
}
