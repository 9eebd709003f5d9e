package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	bind "github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/types"
)

const (
	// defaultRetries is the number of times to retry an RPC call on the same endpoint before switching
	defaultRetries = 2
	// defaultRetrySleep is the time to wait between retries on the same endpoint
	defaultRetrySleep = 200 * time.Millisecond
)

var (
	defaultTimeout    = 3 * time.Second
	filterLogsTimeout = 5 * time.Second
)

// Client implements bind.ContractBackend over a Web3Pool, balancing the
// calls between its endpoints. Every error it returns carries a
// types.ErrorCode.
type Client struct {
	w3p     *Web3Pool
	chainID uint64
}

var _ bind.ContractBackend = (*Client)(nil)

// EthClient returns the client of the next endpoint in rotation.
func (c *Client) EthClient() (*ethclient.Client, error) {
	endpoint, err := c.w3p.Endpoint()
	if err != nil {
		return nil, types.NewBoundaryError(types.CodeNetwork, "endpoint", err)
	}
	return endpoint.client, nil
}

// ChainID returns the chain served by the pool without a network call.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).SetUint64(c.chainID)
}

// call runs fn with a per-attempt timeout derived from ctx.
func call[T any](ctx context.Context, c *Client, op string, timeout time.Duration,
	fn func(context.Context, *ethclient.Client) (T, error),
) (T, error) {
	res, err := c.retryAndCheckErr(ctx, func(endpoint *Web3Endpoint) (any, error) {
		internalCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(internalCtx, endpoint.client)
	})
	if err != nil {
		var zero T
		return zero, wrap(op, err)
	}
	return res.(T), nil
}

// CodeAt is required by the bind.ContractBackend interface.
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, c, "eth_getCode", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) ([]byte, error) {
		return ec.CodeAt(ctx, account, blockNumber)
	})
}

// CallContract is required by the bind.ContractBackend interface. Reverts
// are returned wrapping ErrReverted.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, c, "eth_call", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) ([]byte, error) {
		out, err := ec.CallContract(ctx, msg, blockNumber)
		return out, markRevert(err)
	})
}

// EstimateGas is required by the bind.ContractBackend interface.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return call(ctx, c, "eth_estimateGas", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (uint64, error) {
		gas, err := ec.EstimateGas(ctx, msg)
		return gas, markRevert(err)
	})
}

// FilterLogs is required by the bind.ContractBackend interface.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]gethtypes.Log, error) {
	return call(ctx, c, "eth_getLogs", filterLogsTimeout, func(ctx context.Context, ec *ethclient.Client) ([]gethtypes.Log, error) {
		return ec.FilterLogs(ctx, query)
	})
}

// HeaderByNumber is required by the bind.ContractBackend interface.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return call(ctx, c, "eth_getBlockByNumber", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (*gethtypes.Header, error) {
		return ec.HeaderByNumber(ctx, number)
	})
}

// PendingNonceAt is required by the bind.ContractBackend interface.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return call(ctx, c, "eth_getTransactionCount", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (uint64, error) {
		return ec.PendingNonceAt(ctx, account)
	})
}

// SuggestGasPrice is required by the bind.ContractBackend interface.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return call(ctx, c, "eth_gasPrice", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (*big.Int, error) {
		return ec.SuggestGasPrice(ctx)
	})
}

// SuggestGasTipCap is required by the bind.ContractBackend interface.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return call(ctx, c, "eth_maxPriorityFeePerGas", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (*big.Int, error) {
		return ec.SuggestGasTipCap(ctx)
	})
}

// SendTransaction is required by the bind.ContractBackend interface.
func (c *Client) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	_, err := call(ctx, c, "eth_sendRawTransaction", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (struct{}, error) {
		return struct{}{}, markRevert(ec.SendTransaction(ctx, tx))
	})
	return err
}

// PendingCodeAt is required by the bind.ContractBackend interface.
func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return call(ctx, c, "eth_getCode", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) ([]byte, error) {
		return ec.PendingCodeAt(ctx, account)
	})
}

// SubscribeFilterLogs is required by the bind.ContractBackend interface. It
// only works on websocket endpoints.
func (c *Client) SubscribeFilterLogs(ctx context.Context,
	query ethereum.FilterQuery, ch chan<- gethtypes.Log,
) (ethereum.Subscription, error) {
	return call(ctx, c, "eth_subscribe", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (ethereum.Subscription, error) {
		return ec.SubscribeFilterLogs(ctx, query, ch)
	})
}

// TransactionReceipt returns the receipt of a mined transaction, or an error
// wrapping ethereum.NotFound while it is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	return call(ctx, c, "eth_getTransactionReceipt", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (*gethtypes.Receipt, error) {
		return ec.TransactionReceipt(ctx, hash)
	})
}

// BalanceAt wraps ethclient.BalanceAt.
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return call(ctx, c, "eth_getBalance", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (*big.Int, error) {
		return ec.BalanceAt(ctx, account, blockNumber)
	})
}

// BlockNumber wraps ethclient.BlockNumber.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return call(ctx, c, "eth_blockNumber", defaultTimeout, func(ctx context.Context, ec *ethclient.Client) (uint64, error) {
		return ec.BlockNumber(ctx)
	})
}

// markRevert tags JSON-RPC code 3 failures with ErrReverted.
func markRevert(err error) error {
	if err == nil {
		return nil
	}
	if e := ParseError(err); e != nil && e.Code == codeExecutionReverted {
		return fmt.Errorf("%w: %w", ErrReverted, e)
	}
	return err
}

// retryAndCheckErr retries fn on the current endpoint, then disables it and
// moves on to the next one until every endpoint was tried. Permanent errors
// and a cancelled ctx stop the loop immediately.
func (c *Client) retryAndCheckErr(ctx context.Context, fn func(*Web3Endpoint) (any, error)) (any, error) {
	triedEndpoints := make(map[string]bool)

	totalEndpoints := c.w3p.NumberOfEndpoints(false)
	if totalEndpoints == 0 {
		return nil, types.NewBoundaryError(types.CodeNetwork, "rpc",
			fmt.Errorf("no endpoints available for chainID %d", c.chainID))
	}

	var lastErr error
	endpointAttempts := 0

	for endpointAttempts < totalEndpoints {
		endpoint, err := c.w3p.Endpoint()
		if err != nil {
			return nil, types.NewBoundaryError(types.CodeNetwork, "rpc", err)
		}
		if triedEndpoints[endpoint.URI] {
			log.Errorw(lastErr, fmt.Sprintf("endpoint rotation returned already-tried endpoint %s for chainID %d",
				endpoint.URI, c.chainID))
			return nil, fmt.Errorf("endpoint rotation failed for chainID %d: %w", c.chainID, lastErr)
		}
		triedEndpoints[endpoint.URI] = true

		var res any
		for retry := range defaultRetries {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			res, err = fn(endpoint)
			if err == nil {
				if endpointAttempts > 0 {
					log.Infow("RPC call succeeded after endpoint switch",
						"chainID", c.chainID,
						"successfulURI", endpoint.URI,
						"endpointAttempts", endpointAttempts+1,
						"retriesOnEndpoint", retry+1)
				}
				return res, nil
			}
			lastErr = err
			if IsPermanentError(err) {
				log.Debugw("RPC returned permanent error, not retrying",
					"error", err.Error(),
					"chainID", c.chainID,
					"uri", endpoint.URI)
				return nil, err
			}
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return nil, err
			}
			if retry < defaultRetries-1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(defaultRetrySleep):
				}
			}
		}

		log.Warnw("endpoint failed after retries, switching to next",
			"chainID", c.chainID,
			"failedURI", endpoint.URI,
			"error", err.Error(),
			"retries", defaultRetries,
			"endpointAttempt", endpointAttempts+1)

		c.w3p.DisableEndpoint(endpoint.URI)
		endpointAttempts++
	}

	log.Errorw(lastErr, fmt.Sprintf("no more endpoints available after failures for chainID %d, tried %d endpoints",
		c.chainID, len(triedEndpoints)))
	return nil, fmt.Errorf("all endpoints exhausted for chainID %d after %d attempts: %w",
		c.chainID, endpointAttempts, lastErr)
}
