// Package db defines the key-value database abstraction used by the storage
// layer. Backends live in subpackages: inmemory, pebbledb, plus the prefixeddb
// and encrypteddb wrappers that compose over any backend.
package db

import (
	"errors"
	"fmt"
)

const (
	TypePebble   = "pebble"
	TypeInMemory = "memory"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when a key read or written by the
	// transaction was modified by another transaction in the meantime.
	ErrConflict = errors.New("transaction conflict")
	// ErrTxClosed is returned when using a committed or discarded transaction.
	ErrTxClosed = errors.New("transaction already committed or discarded")
)

// Options configures a database backend.
type Options struct {
	Path string
}

// Reader is the read-only part of a database or transaction.
type Reader interface {
	// Get returns the value for key or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key with the given prefix, in
	// lexicographic order, until callback returns false. Keys passed to the
	// callback have the prefix stripped only by prefixed wrappers.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a read-write transaction. Writes are only visible to other
// readers after Commit. Discard must always be safe to call, also after
// Commit, so callers can defer it.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Apply copies all the pending writes of other into this transaction.
	Apply(other WriteTx) error
	Commit() error
	Discard()
}

// Database is a key-value store with transactions.
type Database interface {
	Reader
	WriteTx() WriteTx
	Close() error
	Compact() error
}

// UnwrapWriteTx returns the innermost transaction of a chain of wrapped
// transactions, so Apply can work across wrappers.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		u, ok := tx.(interface{ Unwrap() WriteTx })
		if !ok {
			return tx
		}
		tx = u.Unwrap()
	}
}

// ValidateType checks that typ names a supported backend.
func ValidateType(typ string) error {
	switch typ {
	case TypePebble, TypeInMemory:
		return nil
	}
	return fmt.Errorf("unsupported database type %q", typ)
}
