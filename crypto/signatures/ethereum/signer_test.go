package ethereum

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/util"
)

func TestNewSigner(t *testing.T) {
	c := qt.New(t)

	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	privKey := (*ecdsa.PrivateKey)(signer)
	c.Assert(privKey.D, qt.Not(qt.IsNil))
}

func TestNewSignerFromHex(t *testing.T) {
	c := qt.New(t)

	privKey, err := ethcrypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	hexKey := common.Bytes2Hex(ethcrypto.FromECDSA(privKey))

	for _, in := range []string{hexKey, "0x" + hexKey} {
		signer, err := NewSignerFromHex(in)
		c.Assert(err, qt.IsNil)
		c.Assert(signer.Address(), qt.Equals, ethcrypto.PubkeyToAddress(privKey.PublicKey))
	}

	_, err = NewSignerFromHex("invalid hex string")
	c.Assert(err, qt.Not(qt.IsNil))
	_, err = NewSignerFromHex("1234")
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestSignMessageLikeWallet(t *testing.T) {
	c := qt.New(t)

	signer, err := NewSignerFromSeed(util.RandomBytes(64))
	c.Assert(err, qt.IsNil)

	msg := []byte("sign in to maci-voter")
	raw, err := signer.SignMessage(context.Background(), msg)
	c.Assert(err, qt.IsNil)
	c.Assert(raw, qt.HasLen, SignatureLength)
	c.Assert(raw[64] == 27 || raw[64] == 28, qt.IsTrue)

	sig, err := BytesToSignature(raw)
	c.Assert(err, qt.IsNil)
	addr, err := AddrFromSignature(msg, sig)
	c.Assert(err, qt.IsNil)
	c.Assert(addr, qt.Equals, signer.Address())

	// ECDSA signatures from go-ethereum are deterministic (RFC 6979).
	again, err := signer.SignMessage(context.Background(), msg)
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.DeepEquals, raw)
}

func TestSignTx(t *testing.T) {
	c := qt.New(t)

	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	chainID := big.NewInt(11155111)
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
	})
	signed, err := signer.SignTx(tx, chainID)
	c.Assert(err, qt.IsNil)
	from, err := gethtypes.Sender(gethtypes.NewLondonSigner(chainID), signed)
	c.Assert(err, qt.IsNil)
	c.Assert(from, qt.Equals, signer.Address())
}
