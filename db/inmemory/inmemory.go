// Package inmemory implements an ephemeral db.Database with optimistic
// transactions. It backs tests and the `--db.type=memory` mode.
package inmemory

import (
	"bytes"
	"maps"
	"slices"
	"sync"

	"github.com/vocdoni/maci-voter/db"
)

type entry struct {
	value   []byte
	version uint64
	deleted bool
}

// InMemoryDB implements an ephemeral in-memory db.Database.
type InMemoryDB struct {
	mu          sync.RWMutex
	data        map[string]entry
	nextVersion uint64
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns a new in-memory database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{data: make(map[string]entry)}, nil
}

func (d *InMemoryDB) Close() error   { return nil }
func (d *InMemoryDB) Compact() error { return nil }

func (d *InMemoryDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:     d,
		writes: make(map[string]*[]byte),
		reads:  make(map[string]uint64),
	}
}

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ent, ok := d.data[string(key)]
	if !ok || ent.deleted {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(ent.value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries, _ := d.collect(prefix)
	return iterateSorted(entries, callback)
}

// collect returns copies of the live values under prefix along with the
// version each one was read at.
func (d *InMemoryDB) collect(prefix []byte) (map[string][]byte, map[string]uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	values := make(map[string][]byte)
	versions := make(map[string]uint64)
	for k, ent := range d.data {
		if ent.deleted || !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		values[k] = bytes.Clone(ent.value)
		versions[k] = ent.version
	}
	return values, versions
}

func (d *InMemoryDB) version(key string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data[key].version
}

// WriteTx buffers writes and records the version of every key it touched.
// Commit fails with db.ErrConflict if any of them changed since.
type WriteTx struct {
	db     *InMemoryDB
	writes map[string]*[]byte
	reads  map[string]uint64
	closed bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) track(key string, version uint64) {
	if _, ok := tx.reads[key]; !ok {
		tx.reads[key] = version
	}
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if pending, ok := tx.writes[k]; ok {
		if pending == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*pending), nil
	}
	tx.db.mu.RLock()
	ent, ok := tx.db.data[k]
	tx.db.mu.RUnlock()
	tx.track(k, ent.version)
	if !ok || ent.deleted {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(ent.value), nil
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(k, v []byte) bool) error {
	entries, versions := tx.db.collect(prefix)
	for k, ver := range versions {
		tx.track(k, ver)
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(*v)
	}
	return iterateSorted(entries, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	k := string(key)
	tx.track(k, tx.db.version(k))
	v := bytes.Clone(value)
	tx.writes[k] = &v
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	k := string(key)
	tx.track(k, tx.db.version(k))
	tx.writes[k] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	var err error
	if iterErr := db.UnwrapWriteTx(other).Iterate(nil, func(k, v []byte) bool {
		err = tx.Set(k, v)
		return err == nil
	}); iterErr != nil {
		return iterErr
	}
	return err
}

func (tx *WriteTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for k, seen := range tx.reads {
		if tx.db.data[k].version != seen {
			return db.ErrConflict
		}
	}
	for _, k := range slices.Sorted(maps.Keys(tx.writes)) {
		tx.db.nextVersion++
		ent := entry{version: tx.db.nextVersion}
		if v := tx.writes[k]; v == nil {
			ent.deleted = true
		} else {
			ent.value = bytes.Clone(*v)
		}
		tx.db.data[k] = ent
	}
	tx.closed = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = map[string]*[]byte{}
	tx.reads = map[string]uint64{}
	tx.closed = true
}

func iterateSorted(entries map[string][]byte, callback func(key, value []byte) bool) error {
	for _, k := range slices.Sorted(maps.Keys(entries)) {
		if !callback([]byte(k), entries[k]) {
			break
		}
	}
	return nil
}
