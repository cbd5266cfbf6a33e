package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

const (
	levelDBCacheMB  = 64
	levelDBHandles  = 128
	levelDBMetricNS = "namechain/db/"
)

// Database is the key-value store backing both the block index and the state
// trie. MemDB and LevelDB share one implementation over an ethdb.Database so
// the trie nodes and the chain metadata live in the same backend.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// TrieDB returns the node database used to open state tries. Every call
	// returns the same instance.
	TrieDB() *triedb.Database
	Close()
}

type kvDatabase struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

func newKVDatabase(disk ethdb.Database) *kvDatabase {
	return &kvDatabase{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, triedb.HashDefaults),
	}
}

func (db *kvDatabase) Put(key []byte, value []byte) error {
	return db.disk.Put(key, value)
}

func (db *kvDatabase) Get(key []byte) ([]byte, error) {
	ok, err := db.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	value, err := db.disk.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (db *kvDatabase) Has(key []byte) (bool, error) {
	return db.disk.Has(key)
}

func (db *kvDatabase) TrieDB() *triedb.Database {
	return db.trieDB
}

// --- In-Memory DB (for testing) ---

// MemDB keeps everything in process memory. Contents are lost on Close.
type MemDB struct {
	*kvDatabase
}

func NewMemDB() *MemDB {
	return &MemDB{kvDatabase: newKVDatabase(rawdb.NewMemoryDatabase())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.trieDB.Close()
	_ = db.disk.Close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	*kvDatabase
	path string
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := ethleveldb.New(path, levelDBCacheMB, levelDBHandles, levelDBMetricNS, false)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{kvDatabase: newKVDatabase(rawdb.NewDatabase(kv)), path: path}, nil
}

// Path returns the directory the database was opened from.
func (ldb *LevelDB) Path() string {
	return ldb.path
}

// Close flushes the trie database and closes the underlying LevelDB handle.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.disk.Close()
}
