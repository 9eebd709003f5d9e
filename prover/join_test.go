package prover

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	curve "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/nullifier"
	"github.com/vocdoni/maci-voter/statetree"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/web3"
)

type squareCircuit struct {
	X frontend.Variable
	Y frontend.Variable `gnark:",public"`
}

func (c *squareCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.X, c.X), c.Y)
	return nil
}

func g1Strings(p curve.G1Affine) []string {
	return []string{p.X.String(), p.Y.String(), "1"}
}

func g2Strings(p curve.G2Affine) [][]string {
	return [][]string{
		{p.X.A0.String(), p.X.A1.String()},
		{p.Y.A0.String(), p.Y.A1.String()},
		{"1", "0"},
	}
}

var (
	squareOnce            sync.Once
	squareProof, squareVK []byte
	squareSignals         []byte
	squareErr             error
)

// squareArtifacts proves x*x == 9 with gnark and returns the proof, public
// signals and verification key in snarkjs format.
func squareArtifacts(c *qt.C) (proofJSON, signalsJSON, vkJSON []byte) {
	squareOnce.Do(func() {
		ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &squareCircuit{})
		if err != nil {
			squareErr = err
			return
		}
		pk, vk, err := groth16.Setup(ccs)
		if err != nil {
			squareErr = err
			return
		}
		w, err := frontend.NewWitness(&squareCircuit{X: 3, Y: 9}, ecc.BN254.ScalarField())
		if err != nil {
			squareErr = err
			return
		}
		proof, err := groth16.Prove(ccs, pk, w)
		if err != nil {
			squareErr = err
			return
		}
		gp := proof.(*groth16_bn254.Proof)
		gvk := vk.(*groth16_bn254.VerifyingKey)
		ic := make([][]string, len(gvk.G1.K))
		for i, k := range gvk.G1.K {
			ic[i] = g1Strings(k)
		}
		squareProof, _ = json.Marshal(&CircomProof{
			PiA:      g1Strings(gp.Ar),
			PiB:      g2Strings(gp.Bs),
			PiC:      g1Strings(gp.Krs),
			Protocol: "groth16",
		})
		squareVK, _ = json.Marshal(&CircomVerificationKey{
			Protocol: "groth16",
			Curve:    "bn128",
			NPublic:  1,
			VkAlpha1: g1Strings(gvk.G1.Alpha),
			VkBeta2:  g2Strings(gvk.G2.Beta),
			VkGamma2: g2Strings(gvk.G2.Gamma),
			VkDelta2: g2Strings(gvk.G2.Delta),
			IC:       ic,
		})
		squareSignals, _ = json.Marshal([]string{"9"})
	})
	c.Assert(squareErr, qt.IsNil)
	return squareProof, squareSignals, squareVK
}

func TestVerifyCircomProof(t *testing.T) {
	c := qt.New(t)
	proofJSON, signalsJSON, vkJSON := squareArtifacts(c)
	proof, signals, err := ParseProof(proofJSON, signalsJSON)
	c.Assert(err, qt.IsNil)
	vk, err := ParseVerificationKey(vkJSON)
	c.Assert(err, qt.IsNil)

	c.Assert(Verify(vk, proof, signals), qt.IsNil)

	err = Verify(vk, proof, []string{"10"})
	c.Assert(errors.Is(err, ErrInvalidProof), qt.IsTrue)

	err = Verify(vk, proof, []string{"9", "1"})
	c.Assert(err, qt.ErrorMatches, "verification key expects 1 public signals, got 2")
}

func TestSolidityProof(t *testing.T) {
	c := qt.New(t)
	p := &CircomProof{
		PiA: []string{"1", "2", "1"},
		PiB: [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
		PiC: []string{"7", "0x8", "1"},
	}
	out, err := SolidityProof(p)
	c.Assert(err, qt.IsNil)
	want := []int64{1, 2, 4, 3, 6, 5, 7, 8}
	for i, w := range want {
		c.Assert(out[i].Int64(), qt.Equals, w, qt.Commentf("element %d", i))
	}

	_, err = SolidityProof(&CircomProof{PiA: []string{"1"}})
	c.Assert(err, qt.ErrorMatches, "malformed proof")
}

type fakeSignUps struct {
	events []web3.SignUpEvent
	err    error
}

func (f *fakeSignUps) SignUps(context.Context, common.Address) ([]web3.SignUpEvent, error) {
	return f.events, f.err
}

func signUpEvents(keys ...*maci.PublicKey) []web3.SignUpEvent {
	events := make([]web3.SignUpEvent, len(keys))
	for i, k := range keys {
		events[i] = web3.SignUpEvent{StateIndex: uint64(i) + 1, PubKey: k}
	}
	return events
}

func writeArtifacts(c *qt.C, vk []byte) *artifacts.Artifacts {
	dir := c.TempDir()
	a := &artifacts.Artifacts{
		Zkey:            filepath.Join(dir, "PollJoining_10_test.zkey"),
		Wasm:            filepath.Join(dir, "PollJoining_10_test.wasm"),
		VerificationKey: filepath.Join(dir, "PollJoining_10_test_vk.json"),
	}
	c.Assert(os.WriteFile(a.Zkey, []byte("zkey"), 0o600), qt.IsNil)
	c.Assert(os.WriteFile(a.Wasm, []byte("wasm"), 0o600), qt.IsNil)
	c.Assert(os.WriteFile(a.VerificationKey, vk, 0o600), qt.IsNil)
	return a
}

func TestGenerate(t *testing.T) {
	c := qt.New(t)
	proofJSON, signalsJSON, vkJSON := squareArtifacts(c)
	voter := maci.NewKeypair()
	others := []*maci.PublicKey{maci.NewKeypair().PubKey, maci.NewKeypair().PubKey}
	src := &fakeSignUps{events: signUpEvents(others[0], voter.PubKey, others[1])}

	var gotInputs map[string]any
	prove := func(zkey, wasm []byte, inputs map[string]any) ([]byte, []byte, error) {
		c.Check(string(zkey), qt.Equals, "zkey")
		c.Check(string(wasm), qt.Equals, "wasm")
		gotInputs = inputs
		return proofJSON, signalsJSON, nil
	}
	p := NewJoinProver(src, prove, true)
	pollID := big.NewInt(4)
	jp, err := p.Generate(context.Background(), JoinProofRequest{
		Keypair:        voter,
		PollID:         pollID,
		StateTreeDepth: 10,
		Artifacts:      writeArtifacts(c, vkJSON),
	})
	c.Assert(err, qt.IsNil)

	tree, err := statetree.FromPublicKeys([]*maci.PublicKey{others[0], voter.PubKey, others[1]})
	c.Assert(err, qt.IsNil)
	want, err := nullifier.Compute(voter, pollID)
	c.Assert(err, qt.IsNil)
	c.Assert(jp.Nullifier.Cmp(want), qt.Equals, 0)
	c.Assert(jp.StateRoot.Cmp(tree.Root()), qt.Equals, 0)
	c.Assert(jp.StateRootIndex, qt.Equals, uint64(3))
	c.Assert(jp.StateIndex, qt.Equals, uint64(2))
	c.Assert(jp.PublicSignals, qt.HasLen, 1)
	c.Assert(jp.PublicSignals[0].Int64(), qt.Equals, int64(9))
	for _, v := range jp.Proof {
		c.Assert(v, qt.IsNotNil)
	}

	c.Assert(gotInputs["stateRoot"], qt.Equals, tree.Root().String())
	c.Assert(gotInputs["nullifier"], qt.Equals, want.String())
	c.Assert(gotInputs["pollId"], qt.Equals, "4")
	c.Assert(gotInputs["actualStateTreeDepth"], qt.Equals, "2")
	c.Assert(gotInputs["siblings"], qt.HasLen, 10)
	c.Assert(gotInputs["indices"], qt.DeepEquals, []string{"0", "1", "0", "0", "0", "0", "0", "0", "0", "0"})
}

func TestGenerateFailures(t *testing.T) {
	c := qt.New(t)
	proofJSON, signalsJSON, vkJSON := squareArtifacts(c)
	voter := maci.NewKeypair()
	okProve := func([]byte, []byte, map[string]any) ([]byte, []byte, error) {
		return proofJSON, signalsJSON, nil
	}
	req := JoinProofRequest{
		Keypair:        voter,
		PollID:         big.NewInt(1),
		StateTreeDepth: 10,
		Artifacts:      writeArtifacts(c, vkJSON),
	}

	c.Run("not signed up", func(c *qt.C) {
		p := NewJoinProver(&fakeSignUps{events: signUpEvents(maci.NewKeypair().PubKey)}, okProve, true)
		_, err := p.Generate(context.Background(), req)
		c.Assert(errors.Is(err, types.ErrNotReady), qt.IsTrue)
	})

	c.Run("missing sign up log", func(c *qt.C) {
		events := signUpEvents(maci.NewKeypair().PubKey, voter.PubKey)
		events = events[1:]
		p := NewJoinProver(&fakeSignUps{events: events}, okProve, true)
		_, err := p.Generate(context.Background(), req)
		c.Assert(types.CodeOf(err), qt.Equals, types.CodeNetwork)
	})

	c.Run("proof does not verify", func(c *qt.C) {
		bad := func([]byte, []byte, map[string]any) ([]byte, []byte, error) {
			return proofJSON, []byte(`["10"]`), nil
		}
		p := NewJoinProver(&fakeSignUps{events: signUpEvents(voter.PubKey)}, bad, true)
		_, err := p.Generate(context.Background(), req)
		c.Assert(types.CodeOf(err), qt.Equals, types.CodeProof)
		c.Assert(errors.Is(err, ErrInvalidProof), qt.IsTrue)
	})

	c.Run("prover error", func(c *qt.C) {
		failing := func([]byte, []byte, map[string]any) ([]byte, []byte, error) {
			return nil, nil, errors.New("witness sanity check failed")
		}
		p := NewJoinProver(&fakeSignUps{events: signUpEvents(voter.PubKey)}, failing, false)
		_, err := p.Generate(context.Background(), req)
		c.Assert(types.CodeOf(err), qt.Equals, types.CodeProof)
	})

	c.Run("deadline", func(c *qt.C) {
		release := make(chan struct{})
		defer close(release)
		slow := func([]byte, []byte, map[string]any) ([]byte, []byte, error) {
			<-release
			return proofJSON, signalsJSON, nil
		}
		p := NewJoinProver(&fakeSignUps{events: signUpEvents(voter.PubKey)}, slow, false)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := p.Generate(ctx, req)
		c.Assert(types.CodeOf(err), qt.Equals, types.CodeTimeout)
	})

	c.Run("missing inputs", func(c *qt.C) {
		p := NewJoinProver(&fakeSignUps{}, okProve, false)
		_, err := p.Generate(context.Background(), JoinProofRequest{Keypair: voter, PollID: big.NewInt(1), StateTreeDepth: 10})
		c.Assert(errors.Is(err, types.ErrNotReady), qt.IsTrue)
	})
}
