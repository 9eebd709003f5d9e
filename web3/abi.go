package web3

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Method names used with Contracts.Read and the calldata builders.
const (
	MethodSignUp            = "signUp"
	MethodJoinPoll          = "joinPoll"
	MethodPublishMessage    = "publishMessage"
	MethodCoordinatorPubKey = "coordinatorPubKey"
	MethodPollNullifiers    = "pollNullifiers"
	MethodStartAndEndDate   = "getStartAndEndDate"
	MethodTotalSignups      = "totalSignups"
	MethodNumSignUps        = "numSignUps"
	MethodStateMerged       = "stateMerged"
	MethodHasMember         = "hasMember"
	MethodGetMerkleTreeSize = "getMerkleTreeSize"
	MethodStateTreeDepth    = "stateTreeDepth"
	MethodPollID            = "pollId"

	EventSignUp     = "SignUp"
	EventPollJoined = "PollJoined"
)

const maciABIJSON = `[
{"type":"function","name":"signUp","stateMutability":"nonpayable",
 "inputs":[{"name":"_pubKey","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
           {"name":"_signUpPolicyData","type":"bytes"}],
 "outputs":[]},
{"type":"function","name":"totalSignups","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"numSignUps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"stateTreeDepth","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"event","name":"SignUp","anonymous":false,
 "inputs":[{"name":"_stateIndex","type":"uint256","indexed":false},
           {"name":"_timestamp","type":"uint256","indexed":false},
           {"name":"_userPubKeyX","type":"uint256","indexed":true},
           {"name":"_userPubKeyY","type":"uint256","indexed":true}]}
]`

const pollABIJSON = `[
{"type":"function","name":"joinPoll","stateMutability":"nonpayable",
 "inputs":[{"name":"_nullifier","type":"uint256"},
           {"name":"_pubKey","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
           {"name":"_stateRootIndex","type":"uint256"},
           {"name":"_proof","type":"uint256[8]"},
           {"name":"_signUpPolicyData","type":"bytes"},
           {"name":"_initialVoiceCreditProxyData","type":"bytes"}],
 "outputs":[]},
{"type":"function","name":"publishMessage","stateMutability":"nonpayable",
 "inputs":[{"name":"_message","type":"tuple","components":[{"name":"data","type":"uint256[10]"}]},
           {"name":"_encPubKey","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]}],
 "outputs":[]},
{"type":"function","name":"coordinatorPubKey","stateMutability":"view","inputs":[],
 "outputs":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
{"type":"function","name":"pollNullifiers","stateMutability":"view",
 "inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getStartAndEndDate","stateMutability":"view","inputs":[],
 "outputs":[{"name":"pollStartDate","type":"uint256"},{"name":"pollEndDate","type":"uint256"}]},
{"type":"function","name":"pollId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"stateMerged","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"event","name":"PollJoined","anonymous":false,
 "inputs":[{"name":"_pollPubKeyX","type":"uint256","indexed":true},
           {"name":"_pollPubKeyY","type":"uint256","indexed":true},
           {"name":"_voiceCreditBalance","type":"uint256","indexed":false},
           {"name":"_timestamp","type":"uint256","indexed":false},
           {"name":"_nullifier","type":"uint256","indexed":false},
           {"name":"_pollStateIndex","type":"uint256","indexed":false}]}
]`

const semaphoreABIJSON = `[
{"type":"function","name":"hasMember","stateMutability":"view",
 "inputs":[{"name":"groupId","type":"uint256"},{"name":"identityCommitment","type":"uint256"}],
 "outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"getMerkleTreeSize","stateMutability":"view",
 "inputs":[{"name":"groupId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Parsed contract interfaces.
var (
	MACIABI      = mustParseABI("MACI", maciABIJSON)
	PollABI      = mustParseABI("Poll", pollABIJSON)
	SemaphoreABI = mustParseABI("Semaphore", semaphoreABIJSON)
)

func mustParseABI(name, def string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse %s ABI: %v", name, err))
	}
	return &parsed
}
