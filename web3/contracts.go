// Package web3 is the contract gateway of maci-voter: typed reads of the
// MACI, Poll and Semaphore contracts, transaction submission signed with the
// local wallet, receipt waiting and SignUp log scanning.
package web3

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	bind "github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/maci-voter/crypto/signatures/ethereum"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/web3/rpc"
)

const (
	// web3QueryTimeout is the timeout for web3 queries.
	web3QueryTimeout = 10 * time.Second

	// maxPastBlocksToWatch is the widest block range requested in a single
	// eth_getLogs call.
	maxPastBlocksToWatch = 9990

	// currentBlockIntervalUpdate is the interval to update the current block.
	currentBlockIntervalUpdate = 5 * time.Second
)

// Backend is the chain access used by Contracts. *rpc.Client implements it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID() *big.Int
}

var _ Backend = (*rpc.Client)(nil)

// Addresses contains the addresses of the contracts the voter talks to.
type Addresses struct {
	MACI      common.Address
	Poll      common.Address
	Semaphore common.Address
	// StartBlock is the first block scanned for SignUp logs.
	StartBlock uint64
}

// Contracts implements the contract gateway over a Backend.
type Contracts struct {
	Addresses Addresses
	cli       Backend
	signer    *ethereum.Signer
	abis      map[common.Address]*abi.ABI

	sendMu sync.Mutex

	currentBlock           uint64
	currentBlockLastUpdate time.Time
	currentBlockMutex      sync.Mutex

	// ReceiptPollInterval is how often WaitForReceipt polls.
	ReceiptPollInterval time.Duration
}

// New dials the given endpoints and returns a gateway for addrs. chainID
// may be zero, in which case it is taken from the first endpoint. signer is
// only needed to send transactions.
func New(ctx context.Context, chainID uint64, web3rpcs []string, addrs Addresses, signer *ethereum.Signer) (*Contracts, error) {
	w3pool := rpc.NewWeb3Pool(chainID)
	for _, uri := range web3rpcs {
		if err := w3pool.AddEndpoint(ctx, uri); err != nil {
			log.Warnw("skipping web3 endpoint", "rpc", uri, "error", err.Error())
		}
	}
	if w3pool.NumberOfEndpoints(false) == 0 {
		return nil, types.NewBoundaryError(types.CodeNetwork, "web3", fmt.Errorf("no usable web3 endpoints"))
	}
	cli := w3pool.Client()

	qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	lastBlock, err := cli.BlockNumber(qctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}
	log.Infow("web3 client initialized",
		"chainID", w3pool.ChainID(),
		"lastBlock", lastBlock,
		"numEndpoints", w3pool.NumberOfEndpoints(false),
		"maci", addrs.MACI.Hex(),
		"poll", addrs.Poll.Hex(),
	)
	c := NewWithBackend(cli, addrs, signer)
	c.currentBlock = lastBlock
	c.currentBlockLastUpdate = time.Now()
	return c, nil
}

// NewWithBackend builds a gateway over an existing backend.
func NewWithBackend(cli Backend, addrs Addresses, signer *ethereum.Signer) *Contracts {
	c := &Contracts{
		Addresses:           addrs,
		cli:                 cli,
		signer:              signer,
		abis:                make(map[common.Address]*abi.ABI),
		ReceiptPollInterval: time.Second,
	}
	c.register(addrs.MACI, MACIABI)
	c.register(addrs.Poll, PollABI)
	c.register(addrs.Semaphore, SemaphoreABI)
	return c
}

func (c *Contracts) register(addr common.Address, a *abi.ABI) {
	if addr != (common.Address{}) {
		c.abis[addr] = a
	}
}

// SetPoll points the gateway at another poll contract.
func (c *Contracts) SetPoll(addr common.Address) {
	delete(c.abis, c.Addresses.Poll)
	c.Addresses.Poll = addr
	c.register(addr, PollABI)
}

// Client returns the backend.
func (c *Contracts) Client() Backend { return c.cli }

// ChainID returns the chain of the backend.
func (c *Contracts) ChainID() *big.Int { return c.cli.ChainID() }

// AccountAddress returns the address of the signer, or the zero address.
func (c *Contracts) AccountAddress() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// CurrentBlock returns the current block number for the chain.
func (c *Contracts) CurrentBlock(ctx context.Context) uint64 {
	c.currentBlockMutex.Lock()
	defer c.currentBlockMutex.Unlock()
	now := time.Now()
	if c.currentBlockLastUpdate.Add(currentBlockIntervalUpdate).Before(now) {
		qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
		defer cancel()
		block, err := c.cli.BlockNumber(qctx)
		if err != nil {
			log.Warnw("failed to get block number", "error", err.Error())
			return c.currentBlock
		}
		c.currentBlock = block
		c.currentBlockLastUpdate = now
	}
	return c.currentBlock
}

// Balance returns the wei balance of account at the latest block.
func (c *Contracts) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.cli.BalanceAt(ctx, account, nil)
}

// Read calls a view method of the contract at to and returns its unpacked
// outputs. The ABI is chosen by address among the configured contracts.
func (c *Contracts) Read(ctx context.Context, to common.Address, method string, args ...any) ([]any, error) {
	contractABI, ok := c.abis[to]
	if !ok {
		return nil, fmt.Errorf("no ABI registered for %s", to.Hex())
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.cli.CallContract(ctx, geth.CallMsg{
		From: c.AccountAddress(),
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	res, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, types.NewBoundaryError(types.CodeUnknown, "unpack "+method, err)
	}
	return res, nil
}
