package pebbledb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/db"
	"github.com/vocdoni/maci-voter/db/internal/dbtest"
	"github.com/vocdoni/maci-voter/db/prefixeddb"
)

func TestWriteTx(t *testing.T) {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	defer database.Close()

	dbtest.TestWriteTx(t, database)
}

func TestIterate(t *testing.T) {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	defer database.Close()

	dbtest.TestIterate(t, database)
}

func TestWriteTxApplyPrefixed(t *testing.T) {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	defer database.Close()

	prefix := []byte("one/")
	dbtest.TestWriteTxApplyPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, prefix), prefix)
}

// Pebble batches do not detect conflicts, so TestConcurrentWriteTx is not
// run here. Callers serialize read-modify-write cycles themselves.

func TestReopen(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	database, err := New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("vk/wallet"), []byte("key")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(database.Compact(), qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	database, err = New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	defer database.Close()
	v, err := database.Get([]byte("vk/wallet"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("key"))
}

func TestUpperBound(t *testing.T) {
	c := qt.New(t)
	c.Assert(upperBound([]byte("nc/")), qt.DeepEquals, []byte("nc0"))
	c.Assert(upperBound([]byte{0x01, 0xff}), qt.DeepEquals, []byte{0x02})
	c.Assert(upperBound([]byte{0xff, 0xff}), qt.IsNil)
}
