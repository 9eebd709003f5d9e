// Package command builds, signs and encrypts MACI vote commands. Only the
// coordinator, holding the private half of the poll's coordinator key, can
// decrypt the resulting messages.
package command

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/crypto/poseidoncipher"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/util"
)

const (
	// FieldBits is the width of every packed command field.
	FieldBits = 50
	// MessageLen is the number of field elements of an encrypted message.
	MessageLen = 10

	plaintextLen = 7
)

// ErrDecryption is returned when a message does not decrypt under the given
// key.
var ErrDecryption = errors.New("message decryption failed")

var fieldMask = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), FieldBits), 1)

// VoteCommand is the plaintext of a vote.
type VoteCommand struct {
	StateIndex      uint64
	NewPubKey       *maci.PublicKey
	VoteOptionIndex uint64
	VoteWeight      uint64
	Nonce           uint64
	PollID          uint64
	Salt            *big.Int
}

// Message is an encrypted command as published to the poll contract.
type Message struct {
	Data      [MessageLen]*big.Int
	EncPubKey *maci.PublicKey
}

func checkField(name string, v uint64) error {
	if v>>FieldBits != 0 {
		return fmt.Errorf("%s %d does not fit in %d bits", name, v, FieldBits)
	}
	return nil
}

// Build assembles a command with a fresh random salt. It fails with
// types.ErrNotReady when the voter has no state index yet (zero is the
// padding leaf) or the coordinator key is unknown.
func Build(stateIndex uint64, newPubKey *maci.PublicKey, voteOption, weight, nonce, pollID uint64,
	coordinatorKey *maci.PublicKey,
) (*VoteCommand, error) {
	if stateIndex == 0 {
		return nil, types.NotReady("state index")
	}
	if coordinatorKey == nil {
		return nil, types.NotReady("coordinator public key")
	}
	if newPubKey == nil {
		return nil, fmt.Errorf("missing new public key")
	}
	for _, f := range []struct {
		name string
		v    uint64
	}{
		{"state index", stateIndex},
		{"vote option", voteOption},
		{"vote weight", weight},
		{"nonce", nonce},
		{"poll id", pollID},
	} {
		if err := checkField(f.name, f.v); err != nil {
			return nil, err
		}
	}
	return &VoteCommand{
		StateIndex:      stateIndex,
		NewPubKey:       newPubKey,
		VoteOptionIndex: voteOption,
		VoteWeight:      weight,
		Nonce:           nonce,
		PollID:          pollID,
		Salt:            util.RandomFieldElement(),
	}, nil
}

// Packed returns stateIndex | option<<50 | weight<<100 | nonce<<150 | pollID<<200.
func (c *VoteCommand) Packed() *big.Int {
	packed := new(uint256.Int)
	for i, v := range []uint64{c.StateIndex, c.VoteOptionIndex, c.VoteWeight, c.Nonce, c.PollID} {
		field := new(uint256.Int).And(uint256.NewInt(v), fieldMask)
		packed.Or(packed, field.Lsh(field, uint(i*FieldBits)))
	}
	return packed.ToBig()
}

func unpack(packed *big.Int) (*VoteCommand, error) {
	p, overflow := uint256.FromBig(packed)
	if overflow || p.BitLen() > 5*FieldBits {
		return nil, ErrDecryption
	}
	fields := make([]uint64, 5)
	for i := range fields {
		f := new(uint256.Int).Rsh(p, uint(i*FieldBits))
		fields[i] = f.And(f, fieldMask).Uint64()
	}
	return &VoteCommand{
		StateIndex:      fields[0],
		VoteOptionIndex: fields[1],
		VoteWeight:      fields[2],
		Nonce:           fields[3],
		PollID:          fields[4],
	}, nil
}

// Hash returns Poseidon(packed, newPub.X, newPub.Y, salt), the value signed
// by the voter.
func (c *VoteCommand) Hash() (*big.Int, error) {
	return poseidon.Hash([]*big.Int{c.Packed(), c.NewPubKey.X, c.NewPubKey.Y, c.Salt})
}

// Sign signs the command hash with the voter's key. The signature is
// deterministic for a given key and command.
func Sign(c *VoteCommand, sk *maci.PrivateKey) (*babyjub.Signature, error) {
	h, err := c.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash command: %w", err)
	}
	return sk.SignPoseidon(h), nil
}

// VerifySignature checks sig over the command against pk.
func VerifySignature(c *VoteCommand, sig *babyjub.Signature, pk *maci.PublicKey) bool {
	h, err := c.Hash()
	if err != nil {
		return false
	}
	return pk.Verify(h, sig)
}

// Encrypt encrypts the signed command for the coordinator. A fresh ephemeral
// keypair is drawn on every call and its public half travels with the
// message; the shared key is ephemeralScalar·coordinatorPub.
func Encrypt(c *VoteCommand, sig *babyjub.Signature, coordinatorPub *maci.PublicKey) (*Message, error) {
	if coordinatorPub == nil {
		return nil, types.NotReady("coordinator public key")
	}
	if sig == nil || sig.R8 == nil || sig.S == nil {
		return nil, fmt.Errorf("missing command signature")
	}
	ephemeral := maci.NewKeypair()
	shared := maci.SharedKey(&ephemeral.PrivKey, coordinatorPub)
	plaintext := []*big.Int{c.Packed(), c.NewPubKey.X, c.NewPubKey.Y, c.Salt, sig.R8.X, sig.R8.Y, sig.S}
	ct, err := poseidoncipher.Encrypt(plaintext, poseidoncipher.Key{X: shared.X, Y: shared.Y}, big.NewInt(0))
	if err != nil {
		return nil, fmt.Errorf("encrypt command: %w", err)
	}
	msg := &Message{EncPubKey: ephemeral.PubKey}
	copy(msg.Data[:], ct)
	return msg, nil
}

// Decrypt recovers the command and signature with the coordinator private
// key. A wrong key yields ErrDecryption.
func Decrypt(msg *Message, coordinatorSk *maci.PrivateKey) (*VoteCommand, *babyjub.Signature, error) {
	if msg == nil || msg.EncPubKey == nil {
		return nil, nil, fmt.Errorf("%w: incomplete message", ErrDecryption)
	}
	for i, d := range msg.Data {
		if d == nil {
			return nil, nil, fmt.Errorf("%w: missing data element %d", ErrDecryption, i)
		}
	}
	shared := maci.SharedKey(coordinatorSk, msg.EncPubKey)
	pt, err := poseidoncipher.Decrypt(msg.Data[:], poseidoncipher.Key{X: shared.X, Y: shared.Y}, big.NewInt(0), plaintextLen)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	cmd, err := unpack(pt[0])
	if err != nil {
		return nil, nil, err
	}
	newPub, err := maci.NewPublicKey(pt[1], pt[2])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	cmd.NewPubKey = newPub
	cmd.Salt = pt[3]
	sig := &babyjub.Signature{
		R8: &babyjub.Point{X: pt[4], Y: pt[5]},
		S:  pt[6],
	}
	return cmd, sig, nil
}
