// Package nullifier computes the poll join nullifier of a voting key.
package nullifier

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-voter/crypto/hash/poseidon"
	"github.com/vocdoni/maci-voter/crypto/maci"
)

// Compute returns Poseidon(scalar(sk), pollID), the value the poll contract
// stores on join to reject a second join with the same key. It is a pure
// function of its inputs.
func Compute(kp *maci.Keypair, pollID *big.Int) (*big.Int, error) {
	if kp == nil {
		return nil, fmt.Errorf("nil keypair")
	}
	if pollID == nil || pollID.Sign() < 0 {
		return nil, fmt.Errorf("invalid poll id %v", pollID)
	}
	return poseidon.Hash2(kp.PrivKey.Scalar(), pollID)
}
