package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
)

func TestECDSASignatureValid(t *testing.T) {
	c := qt.New(t)
	c.Assert((&ECDSASignature{}).Valid(), qt.IsFalse)
	c.Assert((&ECDSASignature{R: big.NewInt(1)}).Valid(), qt.IsFalse)
	c.Assert((&ECDSASignature{R: big.NewInt(1), S: big.NewInt(2)}).Valid(), qt.IsTrue)
}

func TestBytesRoundTrip(t *testing.T) {
	c := qt.New(t)
	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	sig, err := signer.Sign([]byte("hello"))
	c.Assert(err, qt.IsNil)

	b := sig.Bytes()
	c.Assert(b, qt.HasLen, SignatureLength)
	c.Assert(b[64] <= 1, qt.IsTrue)

	decoded, err := BytesToSignature(sig.WalletBytes())
	c.Assert(err, qt.IsNil)
	c.Assert(decoded.Bytes(), qt.DeepEquals, b)

	_, err = BytesToSignature(b[:10])
	c.Assert(err, qt.ErrorMatches, "signature length is less than 64")
	bad := append([]byte{}, b...)
	bad[64] = 40
	_, err = BytesToSignature(bad)
	c.Assert(err, qt.ErrorMatches, "wrong signature bytes")
}

func TestVerify(t *testing.T) {
	c := qt.New(t)
	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	msg := []byte("maci")
	sig, err := signer.Sign(msg)
	c.Assert(err, qt.IsNil)

	ok, pub := sig.Verify(msg, signer.Address())
	c.Assert(ok, qt.IsTrue)
	c.Assert(pub, qt.HasLen, 65)

	ok, _ = sig.Verify([]byte("other"), signer.Address())
	c.Assert(ok, qt.IsFalse)
	ok, _ = sig.Verify(msg, common.Address{})
	c.Assert(ok, qt.IsFalse)
}

func TestHexToSignature(t *testing.T) {
	c := qt.New(t)
	signer, err := NewSigner()
	c.Assert(err, qt.IsNil)
	sig, err := signer.Sign([]byte("hex"))
	c.Assert(err, qt.IsNil)

	parsed, err := HexToSignature("0x" + common.Bytes2Hex(sig.WalletBytes()))
	c.Assert(err, qt.IsNil)
	c.Assert(parsed.R.Cmp(sig.R), qt.Equals, 0)
	c.Assert(parsed.S.Cmp(sig.S), qt.Equals, 0)
}
