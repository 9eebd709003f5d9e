package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/types"
)

type testRPCError struct {
	code int
	msg  string
	data any
}

func (e testRPCError) Error() string  { return e.msg }
func (e testRPCError) ErrorCode() int { return e.code }
func (e testRPCError) ErrorData() any { return e.data }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestParseError(t *testing.T) {
	c := qt.New(t)
	c.Assert(ParseError(nil), qt.IsNil)

	parsed := ParseError(fmt.Errorf("call: %w", testRPCError{code: 3, msg: "execution reverted", data: "0x08c379a0"}))
	c.Assert(parsed.Code, qt.Equals, 3)
	c.Assert(parsed.Message, qt.Equals, "execution reverted")
	c.Assert(parsed.Data.String(), qt.Equals, "0x08c379a0")

	plain := ParseError(errors.New("boom"))
	c.Assert(plain.Code, qt.Equals, 0)
	c.Assert(plain.Message, qt.Equals, "boom")

	direct := &RPCError{Code: 7, Message: "x"}
	c.Assert(ParseError(direct), qt.Equals, direct)
}

func TestIsPermanentError(t *testing.T) {
	c := qt.New(t)
	c.Assert(IsPermanentError(nil), qt.IsFalse)
	c.Assert(IsPermanentError(testRPCError{code: codeExecutionReverted, msg: "whatever"}), qt.IsTrue)
	c.Assert(IsPermanentError(testRPCError{code: codeUserRejected, msg: "denied"}), qt.IsTrue)
	c.Assert(IsPermanentError(fmt.Errorf("%w: x", ErrReverted)), qt.IsTrue)
	c.Assert(IsPermanentError(ethereum.NotFound), qt.IsTrue)
	c.Assert(IsPermanentError(context.Canceled), qt.IsTrue)
	// message text alone does not make an error permanent
	c.Assert(IsPermanentError(errors.New("execution reverted")), qt.IsFalse)
	c.Assert(IsPermanentError(testRPCError{code: codeLimitExceeded, msg: "rate limited"}), qt.IsFalse)
}

func TestCode(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"nil", nil, types.CodeUnknown},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), types.CodeTimeout},
		{"net timeout", timeoutErr{}, types.CodeTimeout},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, types.CodeNetwork},
		{"http status", gethrpc.HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}, types.CodeNetwork},
		{"rate limit", testRPCError{code: codeLimitExceeded}, types.CodeNetwork},
		{"user rejected", testRPCError{code: codeUserRejected}, types.CodeWallet},
		{"revert", testRPCError{code: codeExecutionReverted}, types.CodeUnknown},
		{"already coded", types.NewBoundaryError(types.CodeProof, "prove", errors.New("x")), types.CodeProof},
		{"plain", errors.New("strange"), types.CodeUnknown},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			c.Assert(Code(tt.err), qt.Equals, tt.want)
		})
	}
}

func TestWrapKeepsChain(t *testing.T) {
	c := qt.New(t)
	c.Assert(wrap("op", nil), qt.IsNil)
	err := wrap("eth_call", markRevert(testRPCError{code: codeExecutionReverted, msg: "reverted"}))
	c.Assert(err, qt.ErrorIs, ErrReverted)
	c.Assert(types.CodeOf(err), qt.Equals, types.CodeUnknown)
}
