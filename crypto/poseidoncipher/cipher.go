// Package poseidoncipher implements the Poseidon duplex sponge cipher over
// BN254 scalar field elements, keyed by an ECDH point. It produces the same
// ciphertexts as zk-kit's poseidonEncrypt, which MACI coordinators use to
// decrypt vote messages.
//
// The sponge state starts as [0, key.X, key.Y, nonce + length·2^128]. Each
// block permutes the state and adds three plaintext elements into
// state[1..3], which are emitted as ciphertext. One more permutation yields
// the authentication tag in state[1].
package poseidoncipher

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// BlockSize is the rate of the sponge and the padding granularity of the
// plaintext.
const BlockSize = 3

// stateWidth is the Poseidon permutation width, capacity element included.
const stateWidth = BlockSize + 1

// ErrAuthentication is returned by Decrypt when the tag does not match or
// the padding is not zero.
var ErrAuthentication = errors.New("poseidon cipher: authentication failed")

// two128 bounds the nonce and scales the plaintext length in the initial
// state.
var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Key is the shared point obtained via ECDH.
type Key struct {
	X *big.Int
	Y *big.Int
}

// CiphertextLen returns the number of field elements produced for a
// plaintext of n elements, tag included.
func CiphertextLen(n int) int {
	return paddedLen(n) + 1
}

func paddedLen(n int) int {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}

func toElement(v *big.Int) (fr.Element, error) {
	var e fr.Element
	if v == nil {
		return e, fmt.Errorf("nil field element")
	}
	if v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return e, fmt.Errorf("value %s is outside the scalar field", v)
	}
	e.SetBigInt(v)
	return e, nil
}

// initialState builds the sponge state for key, nonce and plaintext length.
func initialState(key Key, nonce *big.Int, length int) ([]*big.Int, error) {
	if key.X == nil || key.Y == nil || nonce == nil {
		return nil, fmt.Errorf("poseidon cipher: key and nonce must be set")
	}
	if nonce.Sign() < 0 || nonce.Cmp(two128) >= 0 {
		return nil, fmt.Errorf("poseidon cipher: nonce must be below 2^128")
	}
	for _, k := range []*big.Int{key.X, key.Y} {
		if _, err := toElement(k); err != nil {
			return nil, fmt.Errorf("poseidon cipher: key: %w", err)
		}
	}
	domain := new(big.Int).Mul(big.NewInt(int64(length)), two128)
	domain.Add(domain, nonce)
	return []*big.Int{big.NewInt(0), key.X, key.Y, domain}, nil
}

// permute applies the width-4 Poseidon permutation and returns the whole
// state.
func permute(state []*big.Int) ([]*big.Int, error) {
	out, err := poseidon.HashWithStateEx(state[1:], state[0], stateWidth)
	if err != nil {
		return nil, fmt.Errorf("poseidon cipher: permutation: %w", err)
	}
	return out, nil
}

// Encrypt encrypts plaintext under key and nonce. The result holds
// CiphertextLen(len(plaintext)) elements, the last one being the tag.
func Encrypt(plaintext []*big.Int, key Key, nonce *big.Int) ([]*big.Int, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("poseidon cipher: empty plaintext")
	}
	state, err := initialState(key, nonce, len(plaintext))
	if err != nil {
		return nil, err
	}
	n := paddedLen(len(plaintext))
	out := make([]*big.Int, 0, n+1)
	for block := 0; block < n; block += BlockSize {
		if state, err = permute(state); err != nil {
			return nil, err
		}
		for j := range BlockSize {
			var m fr.Element
			if i := block + j; i < len(plaintext) {
				if m, err = toElement(plaintext[i]); err != nil {
					return nil, fmt.Errorf("poseidon cipher: element %d: %w", i, err)
				}
			}
			var s fr.Element
			s.SetBigInt(state[j+1])
			s.Add(&s, &m)
			state[j+1] = s.BigInt(new(big.Int))
			out = append(out, state[j+1])
		}
	}
	if state, err = permute(state); err != nil {
		return nil, err
	}
	return append(out, state[1]), nil
}

// Decrypt recovers length plaintext elements. It fails with
// ErrAuthentication if the tag does not match or the padding is not zero.
func Decrypt(ciphertext []*big.Int, key Key, nonce *big.Int, length int) ([]*big.Int, error) {
	if length <= 0 || len(ciphertext) != CiphertextLen(length) {
		return nil, fmt.Errorf("poseidon cipher: expected %d elements, got %d",
			CiphertextLen(length), len(ciphertext))
	}
	for i, c := range ciphertext {
		if _, err := toElement(c); err != nil {
			return nil, fmt.Errorf("poseidon cipher: element %d: %w", i, err)
		}
	}
	state, err := initialState(key, nonce, length)
	if err != nil {
		return nil, err
	}
	body := ciphertext[:len(ciphertext)-1]
	out := make([]*big.Int, 0, len(body))
	for block := 0; block < len(body); block += BlockSize {
		if state, err = permute(state); err != nil {
			return nil, err
		}
		for j := range BlockSize {
			var m, s fr.Element
			m.SetBigInt(body[block+j])
			s.SetBigInt(state[j+1])
			m.Sub(&m, &s)
			out = append(out, m.BigInt(new(big.Int)))
			state[j+1] = body[block+j]
		}
	}
	for _, pad := range out[length:] {
		if pad.Sign() != 0 {
			return nil, ErrAuthentication
		}
	}
	if state, err = permute(state); err != nil {
		return nil, err
	}
	if state[1].Cmp(ciphertext[len(ciphertext)-1]) != 0 {
		return nil, ErrAuthentication
	}
	return out[:length], nil
}
