package voter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/command"
	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/nonce"
	"github.com/vocdoni/maci-voter/prover"
	"github.com/vocdoni/maci-voter/storage"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/web3"
	"github.com/vocdoni/maci-voter/workflow"
)

// Workflow names.
const (
	FlowRegistration = "registration"
	FlowJoin         = "join"
	FlowVote         = "vote"
)

// Step ids.
const (
	StepKeypair   = "keypair"
	StepSignUp    = "signup"
	StepConfirm   = "confirm"
	StepArtifacts = "artifacts"
	StepProof     = "proof"
	StepJoin      = "join"
	StepSelect    = "select"
	StepMessage   = "message"
	StepPublish   = "publish"
)

// Outputs of the intermediate steps.
type (
	// SentTx is the output of a step that sent a transaction. Skipped is
	// set when the chain already holds the result and nothing was sent.
	SentTx struct {
		Hash    common.Hash
		Skipped bool
	}

	// JoinArtifacts are the circuit files for the poll's state tree depth.
	JoinArtifacts struct {
		StateTreeDepth uint8
		Files          *artifacts.Artifacts
	}

	// VoteSelection is a validated vote.
	VoteSelection struct {
		Option         uint64
		Weight         uint64
		PollStateIndex uint64
	}

	// VoteMessage is an encrypted vote ready to be published.
	VoteMessage struct {
		Message *command.Message
		Nonce   uint64
		PollID  *big.Int
	}
)

func (v *Voter) options() []workflow.Option {
	if v.cfg.StepTimeout > 0 {
		return []workflow.Option{workflow.WithStepTimeout(v.cfg.StepTimeout)}
	}
	return nil
}

func (v *Voter) keypair(wallet string) (*maci.Keypair, error) {
	kp, err := v.Keys.GetKey(v.cfg.MACI.Hex(), wallet)
	if err != nil {
		return nil, err
	}
	if kp == nil {
		return nil, types.NotReady("voting key")
	}
	return kp, nil
}

// Registration signs wallet up on the MACI contract with its voting key,
// creating the key on first use.
func (v *Voter) Registration(wallet string) *workflow.Instance {
	return workflow.New(FlowRegistration, []workflow.Step{
		{
			ID:          StepKeypair,
			Description: "Load voting key",
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				return v.Keys.CreateKey(v.cfg.MACI.Hex(), wallet)
			},
		},
		{
			ID:          StepSignUp,
			Description: "Sign up",
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				if _, err := v.Storage.SignUp(v.cfg.MACI.Hex(), wallet); err == nil {
					return &SentTx{Skipped: true}, nil
				}
				kp, err := workflow.OutputOf[*maci.Keypair](sc, StepKeypair)
				if err != nil {
					return nil, err
				}
				data, err := web3.SignUpCalldata(kp.PubKey, v.cfg.SignUpPolicyData)
				if err != nil {
					return nil, err
				}
				hash, err := v.Gateway.SendTransaction(ctx, v.cfg.MACI, data)
				if err != nil {
					return nil, err
				}
				return &SentTx{Hash: hash}, nil
			},
		},
		{
			ID:                 StepConfirm,
			Description:        "Wait for confirmation",
			AwaitsConfirmation: true,
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				tx, err := workflow.OutputOf[*SentTx](sc, StepSignUp)
				if err != nil {
					return nil, err
				}
				if tx.Skipped {
					return v.Storage.SignUp(v.cfg.MACI.Hex(), wallet)
				}
				receipt, err := v.Gateway.WaitForReceipt(ctx, tx.Hash)
				if err != nil {
					return nil, err
				}
				ev, err := web3.SignUpFromReceipt(receipt, v.cfg.MACI)
				if err != nil {
					return nil, types.NewBoundaryError(types.CodeUnknown, "sign up log", err)
				}
				su := &storage.SignUp{StateIndex: ev.StateIndex, TxHash: tx.Hash.Bytes()}
				if err := v.Storage.SetSignUp(v.cfg.MACI.Hex(), wallet, su); err != nil {
					return nil, err
				}
				log.Infow("signed up", "wallet", wallet, "stateIndex", ev.StateIndex)
				return su, nil
			},
		},
	}, v.options()...)
}

// Join proves that the voting key of wallet is signed up and joins the
// poll with it.
func (v *Voter) Join(wallet string) *workflow.Instance {
	return workflow.New(FlowJoin, []workflow.Step{
		{
			ID:          StepArtifacts,
			Description: "Download circuit files",
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				depth, err := v.StateTreeDepth(ctx)
				if err != nil {
					return nil, err
				}
				files, err := v.Artifacts.Fetch(ctx, artifacts.Request{Testing: v.cfg.Testing, StateTreeDepth: depth})
				if err != nil {
					return nil, err
				}
				return &JoinArtifacts{StateTreeDepth: depth, Files: files}, nil
			},
		},
		{
			ID:          StepProof,
			Description: "Generate eligibility proof",
			SubSteps: []string{
				"Rebuilding the state tree",
				"Computing the witness",
				"Generating the proof",
				"Verifying the proof",
			},
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				files, err := workflow.OutputOf[*JoinArtifacts](sc, StepArtifacts)
				if err != nil {
					return nil, err
				}
				kp, err := v.keypair(wallet)
				if err != nil {
					return nil, err
				}
				pollID, err := v.PollID(ctx)
				if err != nil {
					return nil, err
				}
				stop := sc.Simulate(v.cfg.ProofSubStepInterval)
				defer stop()
				return v.Prover.Generate(ctx, prover.JoinProofRequest{
					Keypair:        kp,
					PollID:         pollID,
					StateTreeDepth: files.StateTreeDepth,
					Contract:       v.cfg.MACI,
					Artifacts:      files.Files,
				})
			},
		},
		{
			ID:          StepJoin,
			Description: "Join the poll",
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				proof, err := workflow.OutputOf[*prover.JoinProof](sc, StepProof)
				if err != nil {
					return nil, err
				}
				joined, err := v.HasJoined(ctx, proof.Nullifier)
				if err != nil {
					return nil, err
				}
				if joined {
					log.Infow("poll already joined", "wallet", wallet, "poll", v.cfg.Poll.Hex())
					return &SentTx{Skipped: true}, nil
				}
				kp, err := v.keypair(wallet)
				if err != nil {
					return nil, err
				}
				data, err := web3.JoinPollCalldata(proof.Nullifier, kp.PubKey, proof.StateRootIndex,
					proof.Proof, v.cfg.SignUpPolicyData, v.cfg.VoiceCreditData)
				if err != nil {
					return nil, err
				}
				hash, err := v.Gateway.SendTransaction(ctx, v.cfg.Poll, data)
				if err != nil {
					return nil, err
				}
				return &SentTx{Hash: hash}, nil
			},
		},
		{
			ID:                 StepConfirm,
			Description:        "Wait for confirmation",
			AwaitsConfirmation: true,
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				tx, err := workflow.OutputOf[*SentTx](sc, StepJoin)
				if err != nil {
					return nil, err
				}
				if tx.Skipped {
					pj, err := v.Storage.PollJoin(v.cfg.Poll.Hex(), wallet)
					if errors.Is(err, storage.ErrNotFound) {
						return nil, types.NewBoundaryError(types.CodeUnknown, "poll join",
							fmt.Errorf("poll joined from another device, state index unknown"))
					}
					return pj, err
				}
				proof, err := workflow.OutputOf[*prover.JoinProof](sc, StepProof)
				if err != nil {
					return nil, err
				}
				receipt, err := v.Gateway.WaitForReceipt(ctx, tx.Hash)
				if err != nil {
					return nil, err
				}
				ev, err := web3.PollJoinedFromReceipt(receipt, v.cfg.Poll)
				if err != nil {
					return nil, types.NewBoundaryError(types.CodeUnknown, "poll joined log", err)
				}
				pj := &storage.PollJoin{
					PollStateIndex: ev.PollStateIndex,
					VoiceCredits:   types.FromBig(ev.VoiceCreditBalance),
					Nullifier:      types.FromBig(proof.Nullifier),
					TxHash:         tx.Hash.Bytes(),
				}
				if err := v.Storage.SetPollJoin(v.cfg.Poll.Hex(), wallet, pj); err != nil {
					return nil, err
				}
				log.Infow("poll joined", "wallet", wallet, "pollStateIndex", ev.PollStateIndex)
				return pj, nil
			},
		},
	}, v.options()...)
}

// Vote publishes an encrypted vote for option with weight. The nonce only
// advances once the message is confirmed.
func (v *Voter) Vote(wallet string, option, weight uint64) *workflow.Instance {
	return workflow.New(FlowVote, []workflow.Step{
		{
			ID:          StepSelect,
			Description: "Check the vote",
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				if weight == 0 {
					return nil, types.NewBoundaryError(types.CodeUnknown, "vote", fmt.Errorf("vote weight must be positive"))
				}
				pj, err := v.Storage.PollJoin(v.cfg.Poll.Hex(), wallet)
				if errors.Is(err, storage.ErrNotFound) {
					return nil, types.NotReady("poll state index")
				}
				if err != nil {
					return nil, err
				}
				return &VoteSelection{Option: option, Weight: weight, PollStateIndex: pj.PollStateIndex}, nil
			},
		},
		{
			ID:          StepMessage,
			Description: "Encrypt the vote",
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				sel, err := workflow.OutputOf[*VoteSelection](sc, StepSelect)
				if err != nil {
					return nil, err
				}
				kp, err := v.keypair(wallet)
				if err != nil {
					return nil, err
				}
				coordinator, err := v.CoordinatorPubKey(ctx)
				if err != nil {
					return nil, err
				}
				pollID, err := v.PollID(ctx)
				if err != nil {
					return nil, err
				}
				if !pollID.IsUint64() {
					return nil, types.NewBoundaryError(types.CodeUnknown, "poll id", fmt.Errorf("poll id %s out of range", pollID))
				}
				n, err := v.Nonces.Get(wallet, pollID)
				if err != nil {
					return nil, err
				}
				cmd, err := command.Build(sel.PollStateIndex, kp.PubKey, sel.Option, sel.Weight, n, pollID.Uint64(), coordinator)
				if err != nil {
					return nil, err
				}
				sig, err := command.Sign(cmd, &kp.PrivKey)
				if err != nil {
					return nil, err
				}
				msg, err := command.Encrypt(cmd, sig, coordinator)
				if err != nil {
					return nil, err
				}
				return &VoteMessage{Message: msg, Nonce: n, PollID: pollID}, nil
			},
		},
		{
			ID:          StepPublish,
			Description: "Publish the vote",
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				vm, err := workflow.OutputOf[*VoteMessage](sc, StepMessage)
				if err != nil {
					return nil, err
				}
				data, err := web3.PublishMessageCalldata(vm.Message)
				if err != nil {
					return nil, err
				}
				hash, err := v.Gateway.SendTransaction(ctx, v.cfg.Poll, data)
				if err != nil {
					return nil, err
				}
				return &SentTx{Hash: hash}, nil
			},
		},
		{
			ID:                 StepConfirm,
			Description:        "Wait for confirmation",
			AwaitsConfirmation: true,
			Run: func(ctx context.Context, sc *workflow.StepContext) (any, error) {
				tx, err := workflow.OutputOf[*SentTx](sc, StepPublish)
				if err != nil {
					return nil, err
				}
				vm, err := workflow.OutputOf[*VoteMessage](sc, StepMessage)
				if err != nil {
					return nil, err
				}
				if _, err := v.Gateway.WaitForReceipt(ctx, tx.Hash); err != nil {
					return nil, err
				}
				next, err := v.Nonces.CompareAndIncrement(wallet, vm.PollID, vm.Nonce)
				if errors.Is(err, nonce.ErrStale) {
					log.Warnw("vote nonce already advanced by another submission",
						"wallet", wallet, "nonce", vm.Nonce)
					return v.Nonces.Get(wallet, vm.PollID)
				}
				if err != nil {
					return nil, err
				}
				log.Infow("vote confirmed", "wallet", wallet, "nonce", vm.Nonce, "tx", tx.Hash.Hex())
				return next, nil
			},
		},
	}, v.options()...)
}
