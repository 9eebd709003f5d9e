package voter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/web3"
)

// PollStatus is the on-chain state of the poll.
type PollStatus struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	StateMerged  bool      `json:"stateMerged"`
	TotalSignups uint64    `json:"totalSignups"`
}

// Open reports whether votes are accepted at t.
func (s *PollStatus) Open(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

func outAt[T any](out []any, i int, method string) (T, error) {
	var zero T
	if i >= len(out) {
		return zero, types.NewBoundaryError(types.CodeUnknown, method,
			fmt.Errorf("got %d return values, want at least %d", len(out), i+1))
	}
	v, ok := out[i].(T)
	if !ok {
		return zero, types.NewBoundaryError(types.CodeUnknown, method,
			fmt.Errorf("return value %d has type %T, want %T", i, out[i], zero))
	}
	return v, nil
}

func (v *Voter) read(ctx context.Context, to common.Address, method string, args ...any) ([]any, error) {
	if to == (common.Address{}) {
		return nil, types.NotReady(method + " contract address")
	}
	return v.Gateway.Read(ctx, to, method, args...)
}

// CoordinatorPubKey reads the key votes are encrypted to.
func (v *Voter) CoordinatorPubKey(ctx context.Context) (*maci.PublicKey, error) {
	out, err := v.read(ctx, v.cfg.Poll, web3.MethodCoordinatorPubKey)
	if err != nil {
		return nil, err
	}
	x, err := outAt[*big.Int](out, 0, web3.MethodCoordinatorPubKey)
	if err != nil {
		return nil, err
	}
	y, err := outAt[*big.Int](out, 1, web3.MethodCoordinatorPubKey)
	if err != nil {
		return nil, err
	}
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, types.NotReady("coordinator public key")
	}
	pk, err := maci.NewPublicKey(x, y)
	if err != nil {
		return nil, types.NewBoundaryError(types.CodeUnknown, web3.MethodCoordinatorPubKey, err)
	}
	return pk, nil
}

// PollID reads the id of the configured poll.
func (v *Voter) PollID(ctx context.Context) (*big.Int, error) {
	out, err := v.read(ctx, v.cfg.Poll, web3.MethodPollID)
	if err != nil {
		return nil, err
	}
	return outAt[*big.Int](out, 0, web3.MethodPollID)
}

// StateTreeDepth returns the configured depth or reads it from MACI.
func (v *Voter) StateTreeDepth(ctx context.Context) (uint8, error) {
	if v.cfg.StateTreeDepth != 0 {
		return v.cfg.StateTreeDepth, nil
	}
	out, err := v.read(ctx, v.cfg.MACI, web3.MethodStateTreeDepth)
	if err != nil {
		return 0, err
	}
	return outAt[uint8](out, 0, web3.MethodStateTreeDepth)
}

// HasJoined reports whether nullifier was already used to join the poll.
func (v *Voter) HasJoined(ctx context.Context, nullifier *big.Int) (bool, error) {
	out, err := v.read(ctx, v.cfg.Poll, web3.MethodPollNullifiers, nullifier)
	if err != nil {
		return false, err
	}
	return outAt[bool](out, 0, web3.MethodPollNullifiers)
}

// IsMember reports whether commitment belongs to the configured Semaphore
// group.
func (v *Voter) IsMember(ctx context.Context, commitment *big.Int) (bool, error) {
	if v.cfg.GroupID == nil {
		return false, types.NotReady("semaphore group id")
	}
	out, err := v.read(ctx, v.cfg.Semaphore, web3.MethodHasMember, v.cfg.GroupID, commitment)
	if err != nil {
		return false, err
	}
	return outAt[bool](out, 0, web3.MethodHasMember)
}

// GroupSize reads the number of members of the Semaphore group.
func (v *Voter) GroupSize(ctx context.Context) (uint64, error) {
	if v.cfg.GroupID == nil {
		return 0, types.NotReady("semaphore group id")
	}
	out, err := v.read(ctx, v.cfg.Semaphore, web3.MethodGetMerkleTreeSize, v.cfg.GroupID)
	if err != nil {
		return 0, err
	}
	size, err := outAt[*big.Int](out, 0, web3.MethodGetMerkleTreeSize)
	if err != nil {
		return 0, err
	}
	return size.Uint64(), nil
}

// Membership resolves the identity of wallet, prompting the wallet if it
// was never derived, and checks it against the Semaphore group.
func (v *Voter) Membership(ctx context.Context, wallet string) (bool, error) {
	if v.Identities == nil {
		return false, types.NotReady("identity deriver")
	}
	id, err := v.Identities.Derive(ctx, wallet)
	if err != nil {
		return false, err
	}
	return v.IsMember(ctx, id.Commitment)
}

// PollStatus reads the schedule and merge state of the poll.
func (v *Voter) PollStatus(ctx context.Context) (*PollStatus, error) {
	out, err := v.read(ctx, v.cfg.Poll, web3.MethodStartAndEndDate)
	if err != nil {
		return nil, err
	}
	start, err := outAt[*big.Int](out, 0, web3.MethodStartAndEndDate)
	if err != nil {
		return nil, err
	}
	end, err := outAt[*big.Int](out, 1, web3.MethodStartAndEndDate)
	if err != nil {
		return nil, err
	}
	if out, err = v.read(ctx, v.cfg.Poll, web3.MethodStateMerged); err != nil {
		return nil, err
	}
	merged, err := outAt[bool](out, 0, web3.MethodStateMerged)
	if err != nil {
		return nil, err
	}
	if out, err = v.read(ctx, v.cfg.MACI, web3.MethodTotalSignups); err != nil {
		return nil, err
	}
	total, err := outAt[*big.Int](out, 0, web3.MethodTotalSignups)
	if err != nil {
		return nil, err
	}
	return &PollStatus{
		Start:        time.Unix(start.Int64(), 0).UTC(),
		End:          time.Unix(end.Int64(), 0).UTC(),
		StateMerged:  merged,
		TotalSignups: total.Uint64(),
	}, nil
}
