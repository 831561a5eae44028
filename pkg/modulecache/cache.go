// Package modulecache provides a persistent, content-addressed cache for
// compiled kernel modules (the .ptx/.cl/.nvvm files LoadKernel reads from
// disk). Keying by a hash of the module's own bytes means a kernel
// rebuilt with identical output reuses its cache entry even if the build
// produced it at a different path, and a changed kernel never collides
// with a stale entry at the same path.
package modulecache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/blake2b"
)

// Entry is the metadata stored alongside a cached module's bytes.
type Entry struct {
	Digest     [32]byte
	EntryName  string
	SourcePath string
	Size       int64
	StoredAt   time.Time
}

func init() {
	gob.Register(Entry{})
}

// Cache is a BadgerDB-backed store mapping a module's content digest to its
// Entry metadata plus raw bytes; entries persist across process restarts.
type Cache struct {
	db *badger.DB
}

// Open opens (creating if necessary) a Cache rooted at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("modulecache: opening badger db at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("modulecache: closing badger db: %w", err)
	}
	return nil
}

// Digest returns the blake2b-256 content hash used as this cache's key.
func Digest(source []byte) [32]byte {
	return blake2b.Sum256(source)
}

func entryKey(digest [32]byte) []byte {
	return append([]byte("entry:"), digest[:]...)
}

func bodyKey(digest [32]byte) []byte {
	return append([]byte("body:"), digest[:]...)
}

// Put stores source under its content digest along with entry metadata,
// overwriting any existing entry for the same digest.
func (c *Cache) Put(source []byte, entryName, sourcePath string) (Entry, error) {
	digest := Digest(source)
	entry := Entry{
		Digest:     digest,
		EntryName:  entryName,
		SourcePath: sourcePath,
		Size:       int64(len(source)),
		StoredAt:   time.Now(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return Entry{}, fmt.Errorf("modulecache: encoding entry: %w", err)
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(digest), buf.Bytes()); err != nil {
			return err
		}
		return txn.Set(bodyKey(digest), source)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("modulecache: writing digest %x: %w", digest, err)
	}
	return entry, nil
}

// Get returns the cached module bytes and entry metadata for digest, or
// (Entry{}, nil, badger.ErrKeyNotFound) if nothing is cached under it.
func (c *Cache) Get(digest [32]byte) (Entry, []byte, error) {
	var entry Entry
	var body []byte

	err := c.db.View(func(txn *badger.Txn) error {
		entryItem, err := txn.Get(entryKey(digest))
		if err != nil {
			return err
		}
		if err := entryItem.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&entry)
		}); err != nil {
			return fmt.Errorf("decoding entry: %w", err)
		}

		bodyItem, err := txn.Get(bodyKey(digest))
		if err != nil {
			return err
		}
		return bodyItem.Value(func(val []byte) error {
			body = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return Entry{}, nil, err
	}
	return entry, body, nil
}

// Has reports whether digest is cached, without paying to decode the
// entry or copy the body bytes.
func (c *Cache) Has(digest [32]byte) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(entryKey(digest))
		return err
	})
	return err == nil
}
