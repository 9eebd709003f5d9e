// Package poseidon provides Poseidon hashing over the BN254 scalar field for
// inputs longer than a single permutation accepts.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// MaxInputs is the widest input a single Poseidon permutation accepts.
const MaxInputs = 16

// MultiPoseidon computes the Poseidon hash of a variable number of big.Int inputs.
// Inputs longer than MaxInputs are hashed in chunks of MaxInputs and the chunk
// hashes are hashed again, recursively, until a single value remains.
// Returns an error if no inputs are provided.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) <= MaxInputs {
		return poseidon.Hash(inputs)
	}

	hashes := make([]*big.Int, 0, (len(inputs)+MaxInputs-1)/MaxInputs)
	for i := 0; i < len(inputs); i += MaxInputs {
		end := min(i+MaxInputs, len(inputs))
		hash, err := poseidon.Hash(inputs[i:end])
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if len(hashes) == 1 {
		return hashes[0], nil
	}
	return MultiPoseidon(hashes...)
}

// Hash2 is shorthand for the two-input hash used by nullifiers and state
// leaves.
func Hash2(a, b *big.Int) (*big.Int, error) {
	return poseidon.Hash([]*big.Int{a, b})
}
