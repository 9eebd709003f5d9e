// Package prover generates the poll joining proof: it rebuilds the MACI
// state tree from the sign up logs, computes the circuit witness with the
// circom wasm and proves it with rapidsnark. Proofs are checked locally with
// the gnark Groth16 verifier before they are handed to the caller.
package prover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	rapidsnark "github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/nullifier"
	"github.com/vocdoni/maci-voter/statetree"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/web3"
)

// ErrInvalidProof is returned when a generated proof does not verify.
var ErrInvalidProof = errors.New("invalid proof")

// proveMu serializes rapidsnark runs.
var proveMu sync.Mutex

// SignUpSource lists the sign ups of a MACI contract in state index order.
type SignUpSource interface {
	SignUps(ctx context.Context, maci common.Address) ([]web3.SignUpEvent, error)
}

// ProveFunc turns circuit inputs into a snarkjs style proof and public
// signals.
type ProveFunc func(zkey, wasm []byte, inputs map[string]any) (proofJSON, publicSignalsJSON []byte, err error)

// Rapidsnark computes the witness with the circom wasm and proves it with
// rapidsnark.
func Rapidsnark(zkey, wasm []byte, inputs map[string]any) ([]byte, []byte, error) {
	raw, err := json.Marshal(inputs)
	if err != nil {
		return nil, nil, err
	}
	parsed, err := witness.ParseInputs(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse inputs: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(wasm, true)
	if err != nil {
		return nil, nil, fmt.Errorf("load witness calculator: %w", err)
	}
	w, err := calc.CalculateWTNSBin(parsed, true)
	if err != nil {
		return nil, nil, fmt.Errorf("calculate witness: %w", err)
	}
	proof, pub, err := rapidsnark.Groth16ProverRaw(zkey, w)
	if err != nil {
		return nil, nil, err
	}
	return []byte(proof), []byte(pub), nil
}

// JoinProofRequest holds what the prover needs to prove that Keypair owns
// a signed up state leaf of Contract.
type JoinProofRequest struct {
	Keypair        *maci.Keypair
	PollID         *big.Int
	StateTreeDepth uint8
	Contract       common.Address
	Artifacts      *artifacts.Artifacts
}

// JoinProof is the joinPoll input produced by the prover.
type JoinProof struct {
	Proof          [8]*big.Int
	PublicSignals  []*big.Int
	Nullifier      *big.Int
	StateRoot      *big.Int
	StateRootIndex uint64
	StateIndex     uint64
}

// JoinProver implements the poll joining proof generator.
type JoinProver struct {
	signUps SignUpSource
	prove   ProveFunc
	verify  bool
}

// NewJoinProver returns a prover reading sign ups from src. A nil prove uses
// Rapidsnark. With verify set, proofs are checked before being returned.
func NewJoinProver(src SignUpSource, prove ProveFunc, verify bool) *JoinProver {
	if prove == nil {
		prove = Rapidsnark
	}
	return &JoinProver{signUps: src, prove: prove, verify: verify}
}

func proofErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewBoundaryError(types.CodeTimeout, op, err)
	}
	return types.NewBoundaryError(types.CodeProof, op, err)
}

// Generate builds the join proof for req.
func (p *JoinProver) Generate(ctx context.Context, req JoinProofRequest) (*JoinProof, error) {
	if req.Keypair == nil || req.Keypair.PubKey == nil {
		return nil, types.NotReady("voting key")
	}
	if req.PollID == nil {
		return nil, types.NotReady("poll id")
	}
	if req.StateTreeDepth == 0 {
		return nil, types.NotReady("state tree depth")
	}
	if req.Artifacts == nil {
		return nil, types.NotReady("circuit artifacts")
	}
	defer log.Elapsed("join proof generated", "poll", req.PollID.String())()

	tree, stateIndex, err := p.stateTree(ctx, req.Contract, req.Keypair.PubKey)
	if err != nil {
		return nil, err
	}
	path, err := tree.Proof(stateIndex)
	if err != nil {
		return nil, proofErr("state path", err)
	}
	if !statetree.Verify(path) {
		return nil, proofErr("state path", fmt.Errorf("inclusion proof of leaf %d does not verify", stateIndex))
	}
	circuitPath, err := path.Circuit(int(req.StateTreeDepth))
	if err != nil {
		return nil, proofErr("state path", err)
	}
	null, err := nullifier.Compute(req.Keypair, req.PollID)
	if err != nil {
		return nil, proofErr("nullifier", err)
	}

	inputs := joinInputs(req, circuitPath, null, path.Root)
	zkey, wasm, vkData, err := readArtifacts(req.Artifacts, p.verify)
	if err != nil {
		return nil, err
	}
	proofJSON, pubJSON, err := p.run(ctx, zkey, wasm, inputs)
	if err != nil {
		return nil, err
	}
	circomProof, signals, err := ParseProof(proofJSON, pubJSON)
	if err != nil {
		return nil, proofErr("parse proof", err)
	}
	if p.verify {
		vk, err := ParseVerificationKey(vkData)
		if err != nil {
			return nil, proofErr("verification key", err)
		}
		if err := Verify(vk, circomProof, signals); err != nil {
			return nil, proofErr("verify", err)
		}
	}
	solidity, err := SolidityProof(circomProof)
	if err != nil {
		return nil, proofErr("format proof", err)
	}
	public := make([]*big.Int, len(signals))
	for i, s := range signals {
		if public[i], err = stringToBigInt(s); err != nil {
			return nil, proofErr("public signals", err)
		}
	}
	return &JoinProof{
		Proof:          solidity,
		PublicSignals:  public,
		Nullifier:      null,
		StateRoot:      path.Root,
		StateRootIndex: tree.RootIndex(),
		StateIndex:     stateIndex,
	}, nil
}

// stateTree rebuilds the state tree and locates the leaf of pk. A key with
// no leaf has not signed up yet.
func (p *JoinProver) stateTree(ctx context.Context, contract common.Address, pk *maci.PublicKey) (*statetree.Tree, uint64, error) {
	events, err := p.signUps.SignUps(ctx, contract)
	if err != nil {
		return nil, 0, err
	}
	keys := make([]*maci.PublicKey, len(events))
	for i, ev := range events {
		if ev.StateIndex != uint64(i)+1 {
			return nil, 0, types.NewBoundaryError(types.CodeNetwork, "sign up logs",
				fmt.Errorf("missing sign up before state index %d", ev.StateIndex))
		}
		keys[i] = ev.PubKey
	}
	tree, err := statetree.FromPublicKeys(keys)
	if err != nil {
		return nil, 0, proofErr("state tree", err)
	}
	leaf, err := statetree.Leaf(pk)
	if err != nil {
		return nil, 0, proofErr("state tree", err)
	}
	idx, ok := tree.IndexOf(leaf)
	if !ok {
		return nil, 0, types.NotReady("sign up of voting key")
	}
	return tree, idx, nil
}

// run proves under proveMu. rapidsnark cannot be interrupted, so a cancelled
// context returns early and the proof is discarded when it completes.
func (p *JoinProver) run(ctx context.Context, zkey, wasm []byte, inputs map[string]any) ([]byte, []byte, error) {
	type result struct {
		proof, pub []byte
		err        error
	}
	done := make(chan result, 1)
	go func() {
		proveMu.Lock()
		defer proveMu.Unlock()
		if ctx.Err() != nil {
			done <- result{err: ctx.Err()}
			return
		}
		proof, pub, err := p.prove(zkey, wasm, inputs)
		done <- result{proof, pub, err}
	}()
	select {
	case <-ctx.Done():
		return nil, nil, proofErr("prove", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, nil, proofErr("prove", r.err)
		}
		return r.proof, r.pub, nil
	}
}

func joinInputs(req JoinProofRequest, path *statetree.CircuitPath, null, root *big.Int) map[string]any {
	siblings := make([][]string, len(path.Siblings))
	indices := make([]string, len(path.Indices))
	for i := range path.Siblings {
		siblings[i] = []string{path.Siblings[i].String()}
		indices[i] = path.Indices[i].String()
	}
	return map[string]any{
		"privKey":              req.Keypair.PrivKey.Scalar().String(),
		"pollPubKey":           []string{req.Keypair.PubKey.X.String(), req.Keypair.PubKey.Y.String()},
		"siblings":             siblings,
		"indices":              indices,
		"nullifier":            null.String(),
		"stateRoot":            root.String(),
		"actualStateTreeDepth": fmt.Sprint(path.ActualDepth),
		"pollId":               req.PollID.String(),
	}
}

func readArtifacts(a *artifacts.Artifacts, withKey bool) (zkey, wasm, vk []byte, err error) {
	if zkey, err = os.ReadFile(a.Zkey); err != nil {
		return nil, nil, nil, proofErr("read zkey", err)
	}
	if wasm, err = os.ReadFile(a.Wasm); err != nil {
		return nil, nil, nil, proofErr("read wasm", err)
	}
	if withKey {
		if vk, err = os.ReadFile(a.VerificationKey); err != nil {
			return nil, nil, nil, proofErr("read verification key", err)
		}
	}
	return zkey, wasm, vk, nil
}
