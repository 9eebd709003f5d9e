// Package encrypteddb wraps a db.Database so that every stored value is
// sealed with XChaCha20-Poly1305 under a key derived from a passphrase with
// Argon2id. Keys stay in clear text so prefix iteration keeps working; each
// value is bound to its key as additional data.
package encrypteddb

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/vocdoni/maci-voter/db"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltSize    = 16
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

var (
	// ErrWrongPassphrase is returned by New when the passphrase does not open
	// the existing database.
	ErrWrongPassphrase = errors.New("wrong database passphrase")
	// ErrCorrupted is returned when a stored value fails authentication.
	ErrCorrupted = errors.New("encrypted value failed authentication")

	metaPrefix = []byte("\x00encdb/")
	saltKey    = append(bytes.Clone(metaPrefix), "salt"...)
	canaryKey  = append(bytes.Clone(metaPrefix), "canary"...)
	canary     = []byte("maci-voter encrypted store")
)

// EncryptedDB implements db.Database over another backend.
type EncryptedDB struct {
	inner db.Database
	aead  cipher.AEAD
}

var _ db.Database = (*EncryptedDB)(nil)

// New opens inner with the given passphrase. On a fresh database a random
// salt and a canary value are written; on an existing one the canary is used
// to reject a wrong passphrase early.
func New(inner db.Database, passphrase string) (*EncryptedDB, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encrypteddb: empty passphrase")
	}
	salt, fresh, err := loadOrCreateSalt(inner)
	if err != nil {
		return nil, err
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonLanes, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("encrypteddb: %w", err)
	}
	e := &EncryptedDB{inner: inner, aead: aead}
	if fresh {
		tx := inner.WriteTx()
		defer tx.Discard()
		sealed, err := e.seal(canaryKey, canary)
		if err != nil {
			return nil, err
		}
		if err := tx.Set(canaryKey, sealed); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("encrypteddb: write canary: %w", err)
		}
		return e, nil
	}
	sealed, err := inner.Get(canaryKey)
	if err != nil {
		return nil, fmt.Errorf("encrypteddb: read canary: %w", err)
	}
	got, err := e.open(canaryKey, sealed)
	if err != nil || !bytes.Equal(got, canary) {
		return nil, ErrWrongPassphrase
	}
	return e, nil
}

func loadOrCreateSalt(inner db.Database) ([]byte, bool, error) {
	salt, err := inner.Get(saltKey)
	if err == nil {
		return salt, false, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, false, fmt.Errorf("encrypteddb: read salt: %w", err)
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, false, err
	}
	tx := inner.WriteTx()
	defer tx.Discard()
	if err := tx.Set(saltKey, salt); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("encrypteddb: write salt: %w", err)
	}
	return salt, true, nil
}

func (e *EncryptedDB) seal(key, value []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(value)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, value, key), nil
}

func (e *EncryptedDB) open(key, sealed []byte) ([]byte, error) {
	if len(sealed) < e.aead.NonceSize() {
		return nil, ErrCorrupted
	}
	nonce, ciphertext := sealed[:e.aead.NonceSize()], sealed[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, ciphertext, key)
	if err != nil {
		return nil, ErrCorrupted
	}
	return plain, nil
}

func (e *EncryptedDB) Get(key []byte) ([]byte, error) {
	sealed, err := e.inner.Get(key)
	if err != nil {
		return nil, err
	}
	return e.open(key, sealed)
}

func (e *EncryptedDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterateOpen(e, e.inner, prefix, callback)
}

func (e *EncryptedDB) WriteTx() db.WriteTx {
	return &WriteTx{db: e, tx: e.inner.WriteTx()}
}

func (e *EncryptedDB) Close() error   { return e.inner.Close() }
func (e *EncryptedDB) Compact() error { return e.inner.Compact() }

// iterateOpen decrypts values on the fly and hides the metadata keys. A value
// that fails authentication aborts the iteration with ErrCorrupted.
func iterateOpen(e *EncryptedDB, r db.Reader, prefix []byte, callback func(key, value []byte) bool) error {
	var openErr error
	err := r.Iterate(prefix, func(key, value []byte) bool {
		if bytes.HasPrefix(key, metaPrefix) {
			return true
		}
		plain, err := e.open(key, value)
		if err != nil {
			openErr = fmt.Errorf("%w: key %x", err, key)
			return false
		}
		return callback(key, plain)
	})
	if err != nil {
		return err
	}
	return openErr
}

// WriteTx seals values on Set and opens them on reads.
type WriteTx struct {
	db *EncryptedDB
	tx db.WriteTx
}

var _ db.WriteTx = (*WriteTx)(nil)

func (t *WriteTx) Get(key []byte) ([]byte, error) {
	sealed, err := t.tx.Get(key)
	if err != nil {
		return nil, err
	}
	return t.db.open(key, sealed)
}

func (t *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return iterateOpen(t.db, t.tx, prefix, callback)
}

func (t *WriteTx) Set(key, value []byte) error {
	sealed, err := t.db.seal(key, value)
	if err != nil {
		return err
	}
	return t.tx.Set(key, sealed)
}

func (t *WriteTx) Delete(key []byte) error { return t.tx.Delete(key) }

// Apply copies the sealed writes of other, which must come from the same
// EncryptedDB.
func (t *WriteTx) Apply(other db.WriteTx) error { return t.tx.Apply(other) }

func (t *WriteTx) Commit() error { return t.tx.Commit() }
func (t *WriteTx) Discard()      { t.tx.Discard() }

// Unwrap returns the underlying transaction.
func (t *WriteTx) Unwrap() db.WriteTx { return t.tx }
