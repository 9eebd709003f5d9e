// Package voter implements the registration, poll joining and voting
// workflows of a MACI voter on top of the workflow engine.
package voter

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/identity"
	"github.com/vocdoni/maci-voter/keystore"
	"github.com/vocdoni/maci-voter/nonce"
	"github.com/vocdoni/maci-voter/prover"
	"github.com/vocdoni/maci-voter/storage"
)

// ContractGateway is the chain access of the workflows. *web3.Contracts
// implements it.
type ContractGateway interface {
	Read(ctx context.Context, to common.Address, method string, args ...any) ([]any, error)
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
}

// ArtifactFetcher resolves the circuit files of the join proof.
// *artifacts.Fetcher implements it.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, req artifacts.Request) (*artifacts.Artifacts, error)
}

// ProofGenerator produces join proofs. *prover.JoinProver implements it.
type ProofGenerator interface {
	Generate(ctx context.Context, req prover.JoinProofRequest) (*prover.JoinProof, error)
}

// Config holds the contracts and parameters the workflows run against.
type Config struct {
	MACI      common.Address
	Poll      common.Address
	Semaphore common.Address
	GroupID   *big.Int

	// StateTreeDepth overrides the depth read from the MACI contract.
	StateTreeDepth uint8
	// Testing selects the test build of the circuit artifacts.
	Testing bool

	SignUpPolicyData []byte
	VoiceCreditData  []byte

	// ProofSubStepInterval paces the simulated progress of the proof step.
	ProofSubStepInterval time.Duration
	// StepTimeout bounds every workflow step; zero means no bound.
	StepTimeout time.Duration
}

const defaultProofSubStepInterval = 4 * time.Second

// Deps are the collaborators of a Voter.
type Deps struct {
	Gateway    ContractGateway
	Artifacts  ArtifactFetcher
	Prover     ProofGenerator
	Storage    *storage.Storage
	Keys       *keystore.KeyStore
	Nonces     *nonce.Ledger
	Identities *identity.Deriver
}

// Voter builds workflow instances for wallets.
type Voter struct {
	cfg Config
	Deps
}

// New returns a Voter. Keys and Nonces default to stores over Storage.
func New(cfg Config, deps Deps) *Voter {
	if cfg.ProofSubStepInterval == 0 {
		cfg.ProofSubStepInterval = defaultProofSubStepInterval
	}
	if deps.Keys == nil {
		deps.Keys = keystore.New(deps.Storage)
	}
	if deps.Nonces == nil {
		deps.Nonces = nonce.New(deps.Storage)
	}
	return &Voter{cfg: cfg, Deps: deps}
}

// Config returns the configuration of v.
func (v *Voter) Config() Config { return v.cfg }
