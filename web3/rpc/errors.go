package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/vocdoni/maci-voter/types"
)

// JSON-RPC error codes with a fixed meaning.
const (
	// codeExecutionReverted is returned by eth_call and eth_estimateGas when
	// the contract reverts.
	codeExecutionReverted = 3
	// codeLimitExceeded is the EIP-1474 code for rate limited requests.
	codeLimitExceeded = -32005
	// codeResourceUnavailable is the EIP-1474 code for unavailable resources.
	codeResourceUnavailable = -32002
	// codeInternal is the JSON-RPC internal error code.
	codeInternal = -32603
	// codeUserRejected is the EIP-1193 code for requests declined in the
	// wallet.
	codeUserRejected = 4001
)

// ErrReverted marks errors of calls the contract rejected. Retrying them
// cannot succeed.
var ErrReverted = errors.New("execution reverted")

// RPCError is the error returned by the RPC server
type RPCError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    hexutil.Bytes `json:"data"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s (code: %d, data: %s)", e.Message, e.Code, e.Data.String())
}

func (e *RPCError) ErrorCode() int {
	return e.Code
}

func (e *RPCError) ErrorData() any {
	return e.Data
}

// ParseError tries to extract Data and Code from error,
// to reconstruct a *RPCError.
func ParseError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var direct *RPCError
	if errors.As(err, &direct) {
		return direct
	}

	out := &RPCError{Message: err.Error()}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		out.Code = rpcErr.ErrorCode()
		out.Message = rpcErr.Error()
	}
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		switch v := dataErr.ErrorData().(type) {
		case []byte:
			out.Data = hexutil.Bytes(v)
		case string:
			if b, derr := hexutil.Decode(v); derr == nil {
				out.Data = hexutil.Bytes(b)
			}
		}
	}
	return out
}

// IsPermanentError reports whether retrying err cannot help: the contract
// reverted, the item does not exist, or the caller gave up.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReverted) || errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeExecutionReverted, codeUserRejected:
			return true
		}
	}
	return false
}

// Code classifies an RPC failure into the boundary error codes.
func Code(err error) types.ErrorCode {
	if err == nil {
		return types.CodeUnknown
	}
	if c := types.CodeOf(err); c != types.CodeUnknown {
		return c
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return types.CodeTimeout
		}
		return types.CodeNetwork
	}
	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) {
		return types.CodeNetwork
	}
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		return types.CodeNetwork
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeLimitExceeded, codeResourceUnavailable, codeInternal:
			return types.CodeNetwork
		case codeUserRejected:
			return types.CodeWallet
		}
	}
	return types.CodeUnknown
}

// wrap attaches the boundary code of err.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return types.NewBoundaryError(Code(err), op, err)
}
