package web3

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/maci-voter/crypto/maci"
	"github.com/vocdoni/maci-voter/log"
)

// SignUpEvent is a decoded MACI SignUp log.
type SignUpEvent struct {
	StateIndex  uint64
	PubKey      *maci.PublicKey
	Timestamp   uint64
	BlockNumber uint64
	TxHash      common.Hash
}

// PollJoinedEvent is a decoded Poll PollJoined log.
type PollJoinedEvent struct {
	PubKey             *maci.PublicKey
	VoiceCreditBalance *big.Int
	Nullifier          *big.Int
	PollStateIndex     uint64
	Timestamp          uint64
}

// SignUps returns every SignUp log of the MACI contract at addr, ordered by
// state index. Logs are requested in windows of maxPastBlocksToWatch blocks
// starting at Addresses.StartBlock.
func (c *Contracts) SignUps(ctx context.Context, addr common.Address) ([]SignUpEvent, error) {
	last, err := c.cli.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	topic := MACIABI.Events[EventSignUp].ID
	var events []SignUpEvent
	for start := c.Addresses.StartBlock; start <= last; start += maxPastBlocksToWatch + 1 {
		end := min(start+maxPastBlocksToWatch, last)
		logs, err := c.cli.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{addr},
			Topics:    [][]common.Hash{{topic}},
		})
		if err != nil {
			return nil, fmt.Errorf("filter SignUp logs [%d,%d]: %w", start, end, err)
		}
		for i := range logs {
			ev, err := ParseSignUp(&logs[i])
			if err != nil {
				log.Warnw("skipping malformed SignUp log", "tx", logs[i].TxHash.Hex(), "error", err.Error())
				continue
			}
			events = append(events, *ev)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StateIndex < events[j].StateIndex })
	log.Debugw("sign-up logs fetched", "maci", addr.Hex(), "count", len(events), "toBlock", last)
	return events, nil
}

// ParseSignUp decodes a SignUp log.
func ParseSignUp(l *gethtypes.Log) (*SignUpEvent, error) {
	ev := MACIABI.Events[EventSignUp]
	if len(l.Topics) != 3 || l.Topics[0] != ev.ID {
		return nil, fmt.Errorf("not a SignUp log")
	}
	values, err := MACIABI.Unpack(EventSignUp, l.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack SignUp: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected SignUp data length %d", len(values))
	}
	pk, err := maci.NewPublicKey(l.Topics[1].Big(), l.Topics[2].Big())
	if err != nil {
		return nil, err
	}
	return &SignUpEvent{
		StateIndex:  values[0].(*big.Int).Uint64(),
		Timestamp:   values[1].(*big.Int).Uint64(),
		PubKey:      pk,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}, nil
}

// ParsePollJoined decodes a PollJoined log.
func ParsePollJoined(l *gethtypes.Log) (*PollJoinedEvent, error) {
	ev := PollABI.Events[EventPollJoined]
	if len(l.Topics) != 3 || l.Topics[0] != ev.ID {
		return nil, fmt.Errorf("not a PollJoined log")
	}
	values, err := PollABI.Unpack(EventPollJoined, l.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack PollJoined: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected PollJoined data length %d", len(values))
	}
	pk, err := maci.NewPublicKey(l.Topics[1].Big(), l.Topics[2].Big())
	if err != nil {
		return nil, err
	}
	return &PollJoinedEvent{
		PubKey:             pk,
		VoiceCreditBalance: values[0].(*big.Int),
		Timestamp:          values[1].(*big.Int).Uint64(),
		Nullifier:          values[2].(*big.Int),
		PollStateIndex:     values[3].(*big.Int).Uint64(),
	}, nil
}

// PollJoinedFromReceipt returns the first PollJoined log emitted by poll in
// receipt.
func PollJoinedFromReceipt(receipt *gethtypes.Receipt, poll common.Address) (*PollJoinedEvent, error) {
	for _, l := range receipt.Logs {
		if l.Address != poll {
			continue
		}
		if ev, err := ParsePollJoined(l); err == nil {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("no PollJoined log in receipt %s", receipt.TxHash.Hex())
}

// SignUpFromReceipt returns the first SignUp log emitted by maciAddr in
// receipt.
func SignUpFromReceipt(receipt *gethtypes.Receipt, maciAddr common.Address) (*SignUpEvent, error) {
	for _, l := range receipt.Logs {
		if l.Address != maciAddr {
			continue
		}
		if ev, err := ParseSignUp(l); err == nil {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("no SignUp log in receipt %s", receipt.TxHash.Hex())
}
