package storage

import (
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Database is a generic interface for a key-value store.
// The ledger keeps its state trie on top of it, so every backend also hands out
// the trie database that shares its key space.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

type backend struct {
	kv     ethdb.KeyValueStore
	db     ethdb.Database
	trieDB *triedb.Database
}

func newBackend(kv ethdb.KeyValueStore) backend {
	db := rawdb.NewDatabase(kv)
	return backend{
		kv:     kv,
		db:     db,
		trieDB: triedb.NewDatabase(db, triedb.HashDefaults),
	}
}

func (b backend) Put(key []byte, value []byte) error { return b.kv.Put(key, value) }

func (b backend) Get(key []byte) ([]byte, error) { return b.kv.Get(key) }

func (b backend) Has(key []byte) (bool, error) { return b.kv.Has(key) }

func (b backend) TrieDB() *triedb.Database { return b.trieDB }

// --- In-Memory DB (for testing) ---

type MemDB struct {
	backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: newBackend(memorydb.New())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.trieDB.Close()
	_ = db.db.Close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	backend
}

// LevelDBOptions tunes the on-disk store. Zero values fall back to defaults.
type LevelDBOptions struct {
	CacheMB      int
	OpenFiles    int
	WriteBufMB   int
	ReadOnly     bool
	NoSyncWrites bool
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens a LevelDB database with explicit tuning.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	kv, err := gethleveldb.NewCustom(path, "shadowpay/db", func(o *opt.Options) {
		if opts.CacheMB > 0 {
			o.BlockCacheCapacity = opts.CacheMB / 2 * opt.MiB
		}
		if opts.OpenFiles > 0 {
			o.OpenFilesCacheCapacity = opts.OpenFiles
		}
		if opts.WriteBufMB > 0 {
			o.WriteBuffer = opts.WriteBufMB * opt.MiB
		}
		o.ReadOnly = opts.ReadOnly
		o.NoSync = opts.NoSyncWrites
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{backend: newBackend(kv)}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	_ = ldb.trieDB.Close()
	_ = ldb.db.Close()
}
