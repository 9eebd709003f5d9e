package types

import (
	"errors"
	"fmt"
)

// Local failures. They are raised before any external call is made and are
// reported to the caller as-is instead of pausing a workflow for retry.
var (
	// ErrMissingWallet means no wallet address could be resolved.
	ErrMissingWallet = errors.New("missing wallet address")
	// ErrSignatureRejected means the wallet holder declined to sign.
	ErrSignatureRejected = errors.New("signature rejected by wallet")
	// ErrNotReady means a required input (state index, coordinator key,
	// on-chain parameters) is not available yet.
	ErrNotReady = errors.New("not ready")
)

// IsLocal reports whether err is one of the local failures.
func IsLocal(err error) bool {
	return errors.Is(err, ErrMissingWallet) ||
		errors.Is(err, ErrSignatureRejected) ||
		errors.Is(err, ErrNotReady)
}

// NotReady wraps ErrNotReady naming the missing input.
func NotReady(what string) error {
	return fmt.Errorf("%w: %s", ErrNotReady, what)
}

// ErrorCode is the closed set of failure codes that external boundaries
// (contract gateway, proof generator, artifact fetcher) attach to their
// errors. Callers switch on the code, never on message text.
type ErrorCode uint8

const (
	CodeUnknown ErrorCode = iota
	CodeNetwork
	CodeProof
	CodeWallet
	CodeTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNetwork:
		return "network"
	case CodeProof:
		return "proof"
	case CodeWallet:
		return "wallet"
	case CodeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// BoundaryError is returned by every external call boundary.
type BoundaryError struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *BoundaryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BoundaryError) Unwrap() error { return e.Err }

// NewBoundaryError wraps err with code. A nil err yields nil. If err already
// carries a code, the innermost one is kept and only the operation is added.
func NewBoundaryError(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BoundaryError
	if errors.As(err, &be) {
		code = be.Code
	}
	return &BoundaryError{Code: code, Op: op, Err: err}
}

// CodeOf extracts the boundary code carried by err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var be *BoundaryError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeUnknown
}
