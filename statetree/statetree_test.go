package statetree

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/crypto/hash/poseidon"
	"github.com/vocdoni/maci-voter/crypto/maci"
)

func testKeys(c *qt.C, n int) []*maci.PublicKey {
	keys := make([]*maci.PublicKey, n)
	for i := range keys {
		keys[i] = maci.NewKeypair().PubKey
	}
	return keys
}

func TestNewTreeHoldsPadding(t *testing.T) {
	c := qt.New(t)
	tree := New()
	c.Assert(tree.Size(), qt.Equals, uint64(1))
	c.Assert(tree.Depth(), qt.Equals, 0)
	c.Assert(tree.RootIndex(), qt.Equals, uint64(0))
	c.Assert(tree.Root().Cmp(PadKeyHash), qt.Equals, 0)
}

func TestInsertRoots(t *testing.T) {
	c := qt.New(t)
	a, b, d := big.NewInt(11), big.NewInt(22), big.NewInt(33)
	tree := &Tree{}
	c.Assert(tree.Insert(a), qt.IsNil)
	c.Assert(tree.Insert(b), qt.IsNil)
	ab, err := poseidon.Hash2(a, b)
	c.Assert(err, qt.IsNil)
	c.Assert(tree.Root().Cmp(ab), qt.Equals, 0)

	// a lone right-most node is promoted unhashed
	c.Assert(tree.Insert(d), qt.IsNil)
	abd, err := poseidon.Hash2(ab, d)
	c.Assert(err, qt.IsNil)
	c.Assert(tree.Root().Cmp(abd), qt.Equals, 0)
	c.Assert(tree.Depth(), qt.Equals, 2)
}

func TestProofsVerify(t *testing.T) {
	c := qt.New(t)
	keys := testKeys(c, 6)
	tree, err := FromPublicKeys(keys)
	c.Assert(err, qt.IsNil)
	c.Assert(tree.Size(), qt.Equals, uint64(7))
	c.Assert(tree.RootIndex(), qt.Equals, uint64(6))

	for i := range tree.Size() {
		p, err := tree.Proof(i)
		c.Assert(err, qt.IsNil)
		c.Assert(Verify(p), qt.IsTrue, qt.Commentf("leaf %d", i))
	}

	leaf, err := Leaf(keys[2])
	c.Assert(err, qt.IsNil)
	idx, ok := tree.IndexOf(leaf)
	c.Assert(ok, qt.IsTrue)
	c.Assert(idx, qt.Equals, uint64(3))

	p, err := tree.Proof(idx)
	c.Assert(err, qt.IsNil)
	p.Leaf = big.NewInt(1)
	c.Assert(Verify(p), qt.IsFalse)

	_, err = tree.Proof(7)
	c.Assert(err, qt.ErrorMatches, "leaf 7 out of range.*")
}

func TestCircuitPath(t *testing.T) {
	c := qt.New(t)
	tree, err := FromPublicKeys(testKeys(c, 4))
	c.Assert(err, qt.IsNil)
	// five leaves: the last one only has a sibling at the top level
	p, err := tree.Proof(4)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Siblings, qt.HasLen, 1)
	c.Assert(p.Index, qt.Equals, uint64(1))

	cp, err := p.Circuit(10)
	c.Assert(err, qt.IsNil)
	c.Assert(cp.ActualDepth, qt.Equals, 1)
	c.Assert(cp.Siblings, qt.HasLen, 10)
	c.Assert(cp.Indices[0].Int64(), qt.Equals, int64(1))
	c.Assert(cp.Siblings[9].Sign(), qt.Equals, 0)

	full, err := tree.Proof(1)
	c.Assert(err, qt.IsNil)
	c.Assert(full.Siblings, qt.HasLen, 3)
	_, err = full.Circuit(2)
	c.Assert(err, qt.ErrorMatches, "proof has 3 levels, circuit supports 2")
}
