package web3

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-voter/command"
	"github.com/vocdoni/maci-voter/crypto/maci"
)

// abiPubKey mirrors the PubKey struct of the MACI contracts.
type abiPubKey struct {
	X *big.Int
	Y *big.Int
}

// abiMessage mirrors the Message struct of the MACI contracts.
type abiMessage struct {
	Data [command.MessageLen]*big.Int
}

func toABIPubKey(pk *maci.PublicKey) (abiPubKey, error) {
	if pk == nil || pk.X == nil || pk.Y == nil {
		return abiPubKey{}, fmt.Errorf("nil public key")
	}
	return abiPubKey{X: pk.X, Y: pk.Y}, nil
}

// SignUpCalldata encodes MACI.signUp(pubKey, policyData).
func SignUpCalldata(pubKey *maci.PublicKey, policyData []byte) ([]byte, error) {
	pk, err := toABIPubKey(pubKey)
	if err != nil {
		return nil, err
	}
	return MACIABI.Pack(MethodSignUp, pk, nonNilBytes(policyData))
}

// JoinPollCalldata encodes Poll.joinPoll.
func JoinPollCalldata(nullifier *big.Int, pubKey *maci.PublicKey, stateRootIndex uint64,
	proof [8]*big.Int, policyData, voiceCreditData []byte,
) ([]byte, error) {
	if nullifier == nil {
		return nil, fmt.Errorf("nil nullifier")
	}
	pk, err := toABIPubKey(pubKey)
	if err != nil {
		return nil, err
	}
	for i, p := range proof {
		if p == nil {
			return nil, fmt.Errorf("proof element %d is nil", i)
		}
	}
	return PollABI.Pack(MethodJoinPoll,
		nullifier,
		pk,
		new(big.Int).SetUint64(stateRootIndex),
		proof,
		nonNilBytes(policyData),
		nonNilBytes(voiceCreditData),
	)
}

// PublishMessageCalldata encodes Poll.publishMessage(message, encPubKey).
func PublishMessageCalldata(msg *command.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	encKey, err := toABIPubKey(msg.EncPubKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	var m abiMessage
	for i, v := range msg.Data {
		if v == nil {
			return nil, fmt.Errorf("message element %d is nil", i)
		}
		m.Data[i] = v
	}
	return PollABI.Pack(MethodPublishMessage, m, encKey)
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
