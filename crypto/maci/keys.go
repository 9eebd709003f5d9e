// Package maci implements the BabyJubJub key material used by MACI voters:
// keypairs, their text serialization and the ECDH shared key used to encrypt
// messages for the coordinator.
package maci

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

const (
	// SerializedPrivKeyPrefix prefixes text encoded private keys.
	SerializedPrivKeyPrefix = "macisk."
	// SerializedPubKeyPrefix prefixes text encoded public keys.
	SerializedPubKeyPrefix = "macipk."
)

// PrivateKey is a 32 byte BabyJubJub seed. The scalar used on the curve is
// derived from it with blake512 plus pruning, matching the MACI circuits.
type PrivateKey babyjub.PrivateKey

// PublicKey is a point on the BabyJubJub curve.
type PublicKey struct {
	X *big.Int
	Y *big.Int
}

// Keypair holds a voting key.
type Keypair struct {
	PrivKey PrivateKey
	PubKey  *PublicKey
}

// NewKeypair generates a random keypair from crypto/rand.
func NewKeypair() *Keypair {
	return KeypairFromPrivateKey(PrivateKey(babyjub.NewRandPrivKey()))
}

// KeypairFromPrivateKey derives the public half of sk.
func KeypairFromPrivateKey(sk PrivateKey) *Keypair {
	return &Keypair{PrivKey: sk, PubKey: sk.Public()}
}

func (sk *PrivateKey) babyjub() *babyjub.PrivateKey {
	return (*babyjub.PrivateKey)(sk)
}

// Scalar returns the curve scalar derived from the seed.
func (sk *PrivateKey) Scalar() *big.Int {
	return sk.babyjub().Scalar().BigInt()
}

// Public returns the public key B8·scalar.
func (sk *PrivateKey) Public() *PublicKey {
	p := sk.babyjub().Public()
	return &PublicKey{X: new(big.Int).Set(p.X), Y: new(big.Int).Set(p.Y)}
}

// SignPoseidon signs a field element with EdDSA-Poseidon. The signature is
// deterministic for a given key and message.
func (sk *PrivateKey) SignPoseidon(msg *big.Int) *babyjub.Signature {
	return sk.babyjub().SignPoseidon(msg)
}

// Serialize returns the macisk.<hex> text form.
func (sk *PrivateKey) Serialize() string {
	return SerializedPrivKeyPrefix + hex.EncodeToString(sk[:])
}

// ParsePrivateKey parses the output of PrivateKey.Serialize.
func ParsePrivateKey(s string) (PrivateKey, error) {
	var sk PrivateKey
	raw, ok := strings.CutPrefix(s, SerializedPrivKeyPrefix)
	if !ok {
		return sk, fmt.Errorf("private key must start with %q", SerializedPrivKeyPrefix)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return sk, fmt.Errorf("decode private key: %w", err)
	}
	if len(b) != len(sk) {
		return sk, fmt.Errorf("private key must be %d bytes, got %d", len(sk), len(b))
	}
	copy(sk[:], b)
	return sk, nil
}

// Point returns the key as a babyjub point.
func (pk *PublicKey) Point() *babyjub.Point {
	return &babyjub.Point{X: new(big.Int).Set(pk.X), Y: new(big.Int).Set(pk.Y)}
}

// PublicKeyFromPoint copies p into a PublicKey.
func PublicKeyFromPoint(p *babyjub.Point) *PublicKey {
	return &PublicKey{X: new(big.Int).Set(p.X), Y: new(big.Int).Set(p.Y)}
}

// NewPublicKey builds a public key from its coordinates and checks that the
// point is on the curve.
func NewPublicKey(x, y *big.Int) (*PublicKey, error) {
	if x == nil || y == nil {
		return nil, fmt.Errorf("public key coordinates must be set")
	}
	pk := &PublicKey{X: new(big.Int).Set(x), Y: new(big.Int).Set(y)}
	if !pk.Point().InCurve() {
		return nil, fmt.Errorf("public key is not on the BabyJubJub curve")
	}
	return pk, nil
}

// Equal reports whether both keys are the same point.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return pk.X.Cmp(other.X) == 0 && pk.Y.Cmp(other.Y) == 0
}

// Hash returns Poseidon(X, Y), the value inserted as state leaf on sign up.
func (pk *PublicKey) Hash() (*big.Int, error) {
	return poseidon.Hash([]*big.Int{pk.X, pk.Y})
}

// Serialize returns the macipk.<hex> text form of the compressed point.
func (pk *PublicKey) Serialize() string {
	c := pk.Point().Compress()
	return SerializedPubKeyPrefix + hex.EncodeToString(c[:])
}

// ParsePublicKey parses the output of PublicKey.Serialize.
func ParsePublicKey(s string) (*PublicKey, error) {
	raw, ok := strings.CutPrefix(s, SerializedPubKeyPrefix)
	if !ok {
		return nil, fmt.Errorf("public key must start with %q", SerializedPubKeyPrefix)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	var comp [32]byte
	if len(b) != len(comp) {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", len(comp), len(b))
	}
	copy(comp[:], b)
	p, err := babyjub.NewPoint().Decompress(comp)
	if err != nil {
		return nil, fmt.Errorf("decompress public key: %w", err)
	}
	return PublicKeyFromPoint(p), nil
}

// Verify checks an EdDSA-Poseidon signature over msg.
func (pk *PublicKey) Verify(msg *big.Int, sig *babyjub.Signature) bool {
	if sig == nil || sig.R8 == nil || sig.S == nil {
		return false
	}
	return (*babyjub.PublicKey)(pk.Point()).VerifyPoseidon(msg, sig)
}

// SharedKey computes the ECDH point sk·pk. Both parties obtain the same
// point: ephemeralSk·coordinatorPk == coordinatorSk·ephemeralPk.
func SharedKey(sk *PrivateKey, pk *PublicKey) *PublicKey {
	return PublicKeyFromPoint(babyjub.NewPoint().Mul(sk.Scalar(), pk.Point()))
}
