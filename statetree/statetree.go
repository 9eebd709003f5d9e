// Package statetree rebuilds the MACI state tree, a LeanIMT of
// Poseidon(pubKey.X, pubKey.Y) leaves whose first leaf is the padding key
// hash, and produces the inclusion paths the join proof needs.
package statetree

import (
	"fmt"
	"math/big"

	leanimt "github.com/vocdoni/lean-imt-go"
	"github.com/vocdoni/maci-voter/crypto/hash/poseidon"
	"github.com/vocdoni/maci-voter/crypto/maci"
)

// PadKeyHash is the leaf inserted by the MACI contract at deployment, so
// sign ups start at state index 1.
var PadKeyHash, _ = new(big.Int).SetString("1309255631273308531193241901289907343161346846555918942743921933037802809814", 10)

// Tree is an in-memory LeanIMT. Odd nodes are carried up unhashed.
type Tree struct {
	levels [][]*big.Int
}

// Proof is a LeanIMT inclusion proof. Siblings only holds the levels where
// the node had a sibling and bit i of Index tells whether the node was on
// the right at the i-th of those levels.
type Proof struct {
	Root     *big.Int
	Leaf     *big.Int
	Index    uint64
	Siblings []*big.Int
}

// New returns a tree holding only the padding leaf.
func New() *Tree {
	t := &Tree{}
	if err := t.Insert(PadKeyHash); err != nil {
		panic(err)
	}
	return t
}

// FromPublicKeys returns the tree after signing up keys in order.
func FromPublicKeys(keys []*maci.PublicKey) (*Tree, error) {
	t := New()
	for i, pk := range keys {
		leaf, err := Leaf(pk)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i+1, err)
		}
		if err := t.Insert(leaf); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Leaf returns the state leaf of a public key.
func Leaf(pk *maci.PublicKey) (*big.Int, error) {
	if pk == nil {
		return nil, fmt.Errorf("nil public key")
	}
	return pk.Hash()
}

// Size returns the number of leaves.
func (t *Tree) Size() uint64 {
	if len(t.levels) == 0 {
		return 0
	}
	return uint64(len(t.levels[0]))
}

// Depth returns the number of levels above the leaves.
func (t *Tree) Depth() int {
	return max(len(t.levels)-1, 0)
}

// Root returns the current root.
func (t *Tree) Root() *big.Int {
	if len(t.levels) == 0 {
		return nil
	}
	return new(big.Int).Set(t.levels[len(t.levels)-1][0])
}

// RootIndex is the index of the current root in the contract's list of
// roots recorded on each sign up.
func (t *Tree) RootIndex() uint64 {
	return t.Size() - 1
}

// Insert appends a leaf and updates the path to the root.
func (t *Tree) Insert(leaf *big.Int) error {
	if leaf == nil {
		return fmt.Errorf("nil leaf")
	}
	if len(t.levels) == 0 {
		t.levels = [][]*big.Int{{}}
	}
	t.levels[0] = append(t.levels[0], new(big.Int).Set(leaf))
	index := len(t.levels[0]) - 1
	node := t.levels[0][index]
	for level := 0; ; level++ {
		if len(t.levels[level]) == 1 {
			t.levels = t.levels[:level+1]
			return nil
		}
		if index&1 == 1 {
			h, err := poseidon.Hash2(t.levels[level][index-1], node)
			if err != nil {
				return err
			}
			node = h
		}
		index >>= 1
		if level+1 == len(t.levels) {
			t.levels = append(t.levels, []*big.Int{})
		}
		if index < len(t.levels[level+1]) {
			t.levels[level+1][index] = node
		} else {
			t.levels[level+1] = append(t.levels[level+1], node)
		}
	}
}

// IndexOf returns the position of leaf, or false.
func (t *Tree) IndexOf(leaf *big.Int) (uint64, bool) {
	if len(t.levels) == 0 {
		return 0, false
	}
	for i, l := range t.levels[0] {
		if l.Cmp(leaf) == 0 {
			return uint64(i), true
		}
	}
	return 0, false
}

// Proof returns the inclusion proof of the leaf at index.
func (t *Tree) Proof(index uint64) (*Proof, error) {
	if index >= t.Size() {
		return nil, fmt.Errorf("leaf %d out of range (size %d)", index, t.Size())
	}
	p := &Proof{Root: t.Root(), Leaf: new(big.Int).Set(t.levels[0][index])}
	var bit uint
	i := index
	for level := 0; level < len(t.levels)-1; level++ {
		isRight := i&1 == 1
		sibling := i + 1
		if isRight {
			sibling = i - 1
		}
		if sibling < uint64(len(t.levels[level])) {
			p.Siblings = append(p.Siblings, new(big.Int).Set(t.levels[level][sibling]))
			if isRight {
				p.Index |= 1 << bit
			}
			bit++
		}
		i >>= 1
	}
	return p, nil
}

// Verify checks p against its root.
func Verify(p *Proof) bool {
	if p == nil || p.Root == nil || p.Leaf == nil {
		return false
	}
	return leanimt.VerifyProofWith(leanimt.MerkleProof[*big.Int]{
		Root:     p.Root,
		Leaf:     p.Leaf,
		PathBits: p.Index,
		Siblings: p.Siblings,
	}, leanimt.PoseidonHasher, leanimt.BigIntEqual)
}

// CircuitPath is a proof laid out for a circuit of fixed depth: siblings
// and direction bits padded with zeros up to depth.
type CircuitPath struct {
	Siblings    []*big.Int
	Indices     []*big.Int
	ActualDepth int
}

// Circuit pads p to depth.
func (p *Proof) Circuit(depth int) (*CircuitPath, error) {
	if len(p.Siblings) > depth {
		return nil, fmt.Errorf("proof has %d levels, circuit supports %d", len(p.Siblings), depth)
	}
	cp := &CircuitPath{
		Siblings:    make([]*big.Int, depth),
		Indices:     make([]*big.Int, depth),
		ActualDepth: len(p.Siblings),
	}
	for i := range depth {
		cp.Siblings[i] = big.NewInt(0)
		cp.Indices[i] = big.NewInt(0)
		if i < len(p.Siblings) {
			cp.Siblings[i] = new(big.Int).Set(p.Siblings[i])
			cp.Indices[i] = big.NewInt(int64((p.Index >> uint(i)) & 1))
		}
	}
	return cp, nil
}
