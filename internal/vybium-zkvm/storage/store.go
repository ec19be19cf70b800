// Package storage provides the contract storage backend: a sparse Merkle
// tree of height 256 whose nodes are Poseidon hashes, persisted in LevelDB.
package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// NodeStore wraps LevelDB for raw key-value persistence of tree nodes
type NodeStore struct {
	db *leveldb.DB
}

// OpenNodeStore opens or creates a LevelDB database at the given path.
// If path is empty, uses in-memory storage.
func OpenNodeStore(path string) (*NodeStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open node store at %q: %w", path, err)
	}

	return &NodeStore{db: db}, nil
}

// Get retrieves a value by key. Returns (nil, false, nil) if not found.
func (ns *NodeStore) Get(key []byte) ([]byte, bool, error) {
	data, err := ns.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %x: %w", key, err)
	}
	return data, true, nil
}

// Put stores a single key
func (ns *NodeStore) Put(key, value []byte) error {
	return ns.db.Put(key, value, nil)
}

// Commit writes all pending updates atomically
func (ns *NodeStore) Commit(updates map[string][]byte) error {
	batch := new(leveldb.Batch)
	for k, v := range updates {
		if v == nil {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), v)
	}
	if err := ns.db.Write(batch, nil); err != nil {
		return fmt.Errorf("commit %d updates: %w", len(updates), err)
	}
	return nil
}

// Close releases the database
func (ns *NodeStore) Close() error {
	return ns.db.Close()
}
