package keystore

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/db"
	"github.com/vocdoni/maci-voter/db/inmemory"
	"github.com/vocdoni/maci-voter/storage"
	"github.com/vocdoni/maci-voter/types"
)

const (
	contract = "0x1111111111111111111111111111111111111111"
	wallet   = "0x2222222222222222222222222222222222222222"
)

func newKeyStore(t *testing.T) *KeyStore {
	database, err := inmemory.New(db.Options{})
	qt.Assert(t, err, qt.IsNil)
	return New(storage.New(database))
}

func TestGetKeyAbsent(t *testing.T) {
	c := qt.New(t)
	ks := newKeyStore(t)
	kp, err := ks.GetKey(contract, wallet)
	c.Assert(err, qt.IsNil)
	c.Assert(kp, qt.IsNil)

	_, err = ks.GetKey(contract, "")
	c.Assert(err, qt.ErrorIs, types.ErrMissingWallet)
	_, err = ks.CreateKey(contract, "")
	c.Assert(err, qt.ErrorIs, types.ErrMissingWallet)
}

func TestCreateKeyIsIdempotent(t *testing.T) {
	c := qt.New(t)
	ks := newKeyStore(t)

	first, err := ks.CreateKey(contract, wallet)
	c.Assert(err, qt.IsNil)
	second, err := ks.CreateKey(contract, wallet)
	c.Assert(err, qt.IsNil)
	c.Assert(second.PrivKey, qt.Equals, first.PrivKey)
	c.Assert(second.PubKey.Equal(first.PubKey), qt.IsTrue)

	got, err := ks.GetKey(contract, wallet)
	c.Assert(err, qt.IsNil)
	c.Assert(got.PrivKey, qt.Equals, first.PrivKey)

	other, err := ks.CreateKey("0x3333333333333333333333333333333333333333", wallet)
	c.Assert(err, qt.IsNil)
	c.Assert(other.PubKey.Equal(first.PubKey), qt.IsFalse)
}

func TestCreateKeyConcurrent(t *testing.T) {
	c := qt.New(t)
	ks := newKeyStore(t)

	keys := make([]*maci.Keypair, 8)
	var wg sync.WaitGroup
	for i := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kp, err := ks.CreateKey(contract, wallet)
			if err == nil {
				keys[i] = kp
			}
		}()
	}
	wg.Wait()
	for _, kp := range keys {
		c.Assert(kp, qt.Not(qt.IsNil))
		c.Assert(kp.PrivKey, qt.Equals, keys[0].PrivKey)
	}
}

func TestExportImport(t *testing.T) {
	c := qt.New(t)
	src := newKeyStore(t)
	dst := newKeyStore(t)

	empty, err := src.Export(contract, wallet)
	c.Assert(err, qt.IsNil)
	c.Assert(empty, qt.Equals, "")

	kp, err := src.CreateKey(contract, wallet)
	c.Assert(err, qt.IsNil)
	exported, err := src.Export(contract, wallet)
	c.Assert(err, qt.IsNil)

	imported, err := dst.Import(contract, wallet, exported)
	c.Assert(err, qt.IsNil)
	c.Assert(imported.PubKey.Equal(kp.PubKey), qt.IsTrue)
	_, err = dst.Import(contract, wallet, exported)
	c.Assert(err, qt.IsNil)

	_, err = dst.Import(contract, wallet, maci.NewKeypair().PrivKey.Serialize())
	c.Assert(err, qt.ErrorIs, ErrKeyMismatch)
	_, err = dst.Import(contract, wallet, "garbage")
	c.Assert(err, qt.ErrorMatches, `private key must start with "macisk."`)
}
