/*
Package storage provides the persistent key-value layer of maci-voter.

# Storage Organization

Every record is CBOR encoded under a prefixed namespace. Keys are built from
normalized (lowercase, 0x-prefixed) addresses so that the same wallet always
maps to the same record.

  - vk/ : contract + "/" + wallet → VotingKey (macisk./macipk. key pair)
  - id/ : wallet → Identity (private key, commitment and the signature it came from)
  - nc/ : wallet + "/" + pollID → uint64 nonce
  - su/ : contract + "/" + wallet → SignUp (state index and transaction hash)
  - pj/ : poll + "/" + wallet → PollJoin (poll state index and voice credits)

Voting keys and identities never change once written, so reads of those two
namespaces are served from an LRU cache.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vocdoni/maci-voter/db"
	"github.com/vocdoni/maci-voter/db/prefixeddb"
	"github.com/vocdoni/maci-voter/log"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")
	// ErrValueChanged is returned by compare-and-swap operations when the
	// stored value is not the expected one.
	ErrValueChanged = errors.New("stored value changed")

	// Prefixes
	votingKeyPrefix = []byte("vk/")
	identityPrefix  = []byte("id/")
	noncePrefix     = []byte("nc/")
	signUpPrefix    = []byte("su/")
	pollJoinPrefix  = []byte("pj/")

	cacheSize = 1000
)

// Storage wraps a db.Database with typed accessors for voter records.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex              // Lock for read-modify-write operations
	cache      *lru.Cache[string, any] // Cache for immutable records
}

// New creates a new Storage instance.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	return &Storage{db: database, cache: cache}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

func cacheKey(prefix, key []byte) string {
	return string(prefix) + string(key)
}

// setArtifact stores an encoded artifact under prefix+key, overwriting any
// previous value.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// createArtifact stores an artifact only if the key is free. It returns
// ErrKeyAlreadyExists otherwise. A concurrent writer on the same key makes
// the commit fail with db.ErrConflict on backends that detect it.
func (s *Storage) createArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if _, err := wTx.Get(key); err == nil {
		return ErrKeyAlreadyExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// getArtifact decodes the artifact stored under prefix+key into out. It
// returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedDatabase(s.db, prefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

func (s *Storage) deleteArtifact(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Delete(key); err != nil {
		return err
	}
	return wTx.Commit()
}

// listArtifacts retrieves all the keys for a given prefix.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedDatabase(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}
