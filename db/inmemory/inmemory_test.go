package inmemory

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/db"
	"github.com/vocdoni/maci-voter/db/internal/dbtest"
	"github.com/vocdoni/maci-voter/db/prefixeddb"
)

func newDB(t *testing.T) *InMemoryDB {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newDB(t))
}

func TestWriteTxApplyPrefixed(t *testing.T) {
	database := newDB(t)
	prefix := []byte("one/")
	dbtest.TestWriteTxApplyPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, prefix), prefix)
}

func TestConcurrentWriteTx(t *testing.T) {
	dbtest.TestConcurrentWriteTx(t, newDB(t))
}

func TestCommitTwice(t *testing.T) {
	c := qt.New(t)
	wTx := newDB(t).WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(wTx.Commit(), qt.ErrorIs, db.ErrTxClosed)
	wTx.Discard()
}
