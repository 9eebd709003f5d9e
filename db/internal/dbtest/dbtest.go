// Package dbtest holds conformance tests shared by every db.Database backend.
package dbtest

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/db"
)

// TestWriteTx checks that writes are invisible until committed and that
// deletes and discards behave.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	defer wTx.Discard()

	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)

	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	dTx := database.WriteTx()
	c.Assert(dTx.Delete([]byte("a")), qt.IsNil)
	c.Assert(dTx.Commit(), qt.IsNil)
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	discarded := database.WriteTx()
	c.Assert(discarded.Set([]byte("z"), []byte("z")), qt.IsNil)
	discarded.Discard()
	_, err = database.Get([]byte("z"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix filtering and ordering.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	for i := range 5 {
		c.Assert(wTx.Set(fmt.Appendf(nil, "nc/%d", i), fmt.Appendf(nil, "%d", i)), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("vk/0"), []byte("x")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	var keys []string
	c.Assert(database.Iterate([]byte("nc/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"nc/0", "nc/1", "nc/2", "nc/3", "nc/4"})

	count := 0
	c.Assert(database.Iterate([]byte("nc/"), func(k, v []byte) bool {
		count++
		return count < 2
	}), qt.IsNil)
	c.Assert(count, qt.Equals, 2)
}

// TestWriteTxApplyPrefixed checks that Apply copies writes made through a
// prefixed view into a transaction on the parent database.
func TestWriteTxApplyPrefixed(t *testing.T, database, prefixed db.Database, prefix []byte) {
	c := qt.New(t)

	key := []byte("key")
	value := []byte("value")

	ptx := prefixed.WriteTx()
	defer ptx.Discard()
	c.Assert(ptx.Set(key, value), qt.IsNil)

	wTx := database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Apply(ptx), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	got, err := prefixed.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, value)

	got, err = database.Get(append(append([]byte{}, prefix...), key...))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, value)
}

// TestConcurrentWriteTx checks that the second of two transactions touching
// the same key fails to commit. Only backends with isolation pass it.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	key := []byte("nonce")
	seed := database.WriteTx()
	c.Assert(seed.Set(key, []byte{1}), qt.IsNil)
	c.Assert(seed.Commit(), qt.IsNil)

	tx1 := database.WriteTx()
	tx2 := database.WriteTx()
	defer tx1.Discard()
	defer tx2.Discard()

	_, err := tx1.Get(key)
	c.Assert(err, qt.IsNil)
	_, err = tx2.Get(key)
	c.Assert(err, qt.IsNil)

	c.Assert(tx1.Set(key, []byte{2}), qt.IsNil)
	c.Assert(tx2.Set(key, []byte{2}), qt.IsNil)

	c.Assert(tx1.Commit(), qt.IsNil)
	c.Assert(tx2.Commit(), qt.ErrorIs, db.ErrConflict)

	got, err := database.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []byte{2})
}
