package util

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"
)

func TestRandomFieldElement(t *testing.T) {
	c := qt.New(t)
	for range 32 {
		v := RandomFieldElement()
		c.Assert(v.Sign() >= 0, qt.IsTrue)
		c.Assert(v.Cmp(fr.Modulus()) < 0, qt.IsTrue)
	}
	c.Assert(RandomFieldElement().Cmp(RandomFieldElement()), qt.Not(qt.Equals), 0)
}
