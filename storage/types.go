package storage

import (
	"github.com/vocdoni/maci-voter/types"
)

// VotingKey is the persisted MACI keypair of a wallet for one voting
// contract. Keys are stored in their macisk./macipk. text forms.
type VotingKey struct {
	PrivKey string `json:"privKey" cbor:"0,keyasint"`
	PubKey  string `json:"pubKey" cbor:"1,keyasint"`
}

// Identity is the persisted anonymous identity of a wallet.
type Identity struct {
	PrivateKey types.HexBytes `json:"privateKey" cbor:"0,keyasint"`
	Commitment *types.BigInt  `json:"commitment" cbor:"1,keyasint"`
	Signature  types.HexBytes `json:"signature" cbor:"2,keyasint"`
}

// SignUp records a confirmed registration on a MACI contract.
type SignUp struct {
	StateIndex uint64         `json:"stateIndex" cbor:"0,keyasint"`
	TxHash     types.HexBytes `json:"txHash" cbor:"1,keyasint"`
}

// PollJoin records a confirmed poll join.
type PollJoin struct {
	PollStateIndex uint64         `json:"pollStateIndex" cbor:"0,keyasint"`
	VoiceCredits   *types.BigInt  `json:"voiceCredits" cbor:"1,keyasint"`
	Nullifier      *types.BigInt  `json:"nullifier" cbor:"2,keyasint"`
	TxHash         types.HexBytes `json:"txHash" cbor:"3,keyasint"`
}
