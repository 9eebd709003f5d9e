package command

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/types"
)

func buildSigned(c *qt.C, voter, coordinator *maci.Keypair) (*VoteCommand, *Message) {
	cmd, err := Build(3, voter.PubKey, 2, 9, 1, 5, coordinator.PubKey)
	c.Assert(err, qt.IsNil)
	sig, err := Sign(cmd, &voter.PrivKey)
	c.Assert(err, qt.IsNil)
	c.Assert(VerifySignature(cmd, sig, voter.PubKey), qt.IsTrue)
	msg, err := Encrypt(cmd, sig, coordinator.PubKey)
	c.Assert(err, qt.IsNil)
	return cmd, msg
}

func TestBuildNotReady(t *testing.T) {
	c := qt.New(t)
	voter, coordinator := maci.NewKeypair(), maci.NewKeypair()

	_, err := Build(0, voter.PubKey, 1, 1, 1, 1, coordinator.PubKey)
	c.Assert(err, qt.ErrorIs, types.ErrNotReady)
	c.Assert(err, qt.ErrorMatches, "not ready: state index")
	_, err = Build(1, voter.PubKey, 1, 1, 1, 1, nil)
	c.Assert(err, qt.ErrorIs, types.ErrNotReady)
	_, err = Build(1, voter.PubKey, 1<<50, 1, 1, 1, coordinator.PubKey)
	c.Assert(err, qt.ErrorMatches, "vote option 1125899906842624 does not fit in 50 bits")
}

func TestPacked(t *testing.T) {
	c := qt.New(t)
	cmd := &VoteCommand{StateIndex: 1, VoteOptionIndex: 2, VoteWeight: 3, Nonce: 4, PollID: 5}
	want := big.NewInt(1)
	for i, v := range []int64{2, 3, 4, 5} {
		want.Or(want, new(big.Int).Lsh(big.NewInt(v), uint((i+1)*FieldBits)))
	}
	c.Assert(cmd.Packed().Cmp(want), qt.Equals, 0)

	back, err := unpack(want)
	c.Assert(err, qt.IsNil)
	c.Assert(back.PollID, qt.Equals, uint64(5))
	c.Assert(back.VoteWeight, qt.Equals, uint64(3))
}

func TestSignIsDeterministic(t *testing.T) {
	c := qt.New(t)
	voter, coordinator := maci.NewKeypair(), maci.NewKeypair()
	cmd, err := Build(1, voter.PubKey, 0, 1, 1, 0, coordinator.PubKey)
	c.Assert(err, qt.IsNil)
	a, err := Sign(cmd, &voter.PrivKey)
	c.Assert(err, qt.IsNil)
	b, err := Sign(cmd, &voter.PrivKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.S.Cmp(b.S), qt.Equals, 0)
	c.Assert(VerifySignature(cmd, a, maci.NewKeypair().PubKey), qt.IsFalse)
}

func TestEncryptUsesFreshEphemeralKey(t *testing.T) {
	c := qt.New(t)
	voter, coordinator := maci.NewKeypair(), maci.NewKeypair()
	cmd, err := Build(3, voter.PubKey, 2, 9, 1, 5, coordinator.PubKey)
	c.Assert(err, qt.IsNil)
	sig, err := Sign(cmd, &voter.PrivKey)
	c.Assert(err, qt.IsNil)

	a, err := Encrypt(cmd, sig, coordinator.PubKey)
	c.Assert(err, qt.IsNil)
	b, err := Encrypt(cmd, sig, coordinator.PubKey)
	c.Assert(err, qt.IsNil)
	c.Assert(a.EncPubKey.Equal(b.EncPubKey), qt.IsFalse)
	c.Assert(a.Data[0].Cmp(b.Data[0]), qt.Not(qt.Equals), 0)
}

func TestDecryptRoundTrip(t *testing.T) {
	c := qt.New(t)
	voter, coordinator := maci.NewKeypair(), maci.NewKeypair()
	cmd, msg := buildSigned(c, voter, coordinator)

	got, sig, err := Decrypt(msg, &coordinator.PrivKey)
	c.Assert(err, qt.IsNil)
	c.Assert(got.StateIndex, qt.Equals, cmd.StateIndex)
	c.Assert(got.VoteOptionIndex, qt.Equals, cmd.VoteOptionIndex)
	c.Assert(got.VoteWeight, qt.Equals, cmd.VoteWeight)
	c.Assert(got.Nonce, qt.Equals, cmd.Nonce)
	c.Assert(got.PollID, qt.Equals, cmd.PollID)
	c.Assert(got.Salt.Cmp(cmd.Salt), qt.Equals, 0)
	c.Assert(got.NewPubKey.Equal(cmd.NewPubKey), qt.IsTrue)
	c.Assert(VerifySignature(got, sig, voter.PubKey), qt.IsTrue)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c := qt.New(t)
	voter, coordinator := maci.NewKeypair(), maci.NewKeypair()
	_, msg := buildSigned(c, voter, coordinator)

	wrong := maci.NewKeypair()
	_, _, err := Decrypt(msg, &wrong.PrivKey)
	c.Assert(err, qt.ErrorIs, ErrDecryption)

	_, _, err = Decrypt(&Message{}, &coordinator.PrivKey)
	c.Assert(err, qt.ErrorIs, ErrDecryption)
}

func TestDecryptMissingElement(t *testing.T) {
	c := qt.New(t)
	voter, coordinator := maci.NewKeypair(), maci.NewKeypair()
	_, msg := buildSigned(c, voter, coordinator)
	msg.Data[4] = nil

	_, _, err := Decrypt(msg, &coordinator.PrivKey)
	c.Assert(err, qt.ErrorIs, ErrDecryption)
	c.Assert(err, qt.ErrorMatches, "message decryption failed: missing data element 4")
}

// TestCoordinatorFirstElement opens the first ciphertext element the way a
// coordinator does: one permutation of [0, shared.X, shared.Y, 7·2^128].
func TestCoordinatorFirstElement(t *testing.T) {
	c := qt.New(t)
	voter, coordinator := maci.NewKeypair(), maci.NewKeypair()
	cmd, msg := buildSigned(c, voter, coordinator)

	shared := maci.SharedKey(&coordinator.PrivKey, msg.EncPubKey)
	domain := new(big.Int).Lsh(big.NewInt(plaintextLen), 128)
	state, err := poseidon.HashWithStateEx([]*big.Int{shared.X, shared.Y, domain}, big.NewInt(0), 4)
	c.Assert(err, qt.IsNil)

	packed := new(big.Int).Sub(msg.Data[0], state[1])
	packed.Mod(packed, fr.Modulus())
	c.Assert(packed.Cmp(cmd.Packed()), qt.Equals, 0)
}
