package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/vocdoni/maci-voter/types"
)

var (
	// ErrCancelNotAllowed is returned by Cancel while a step that waits for
	// an on-chain confirmation is running.
	ErrCancelNotAllowed = errors.New("cannot cancel while waiting for confirmation")
	// ErrNotPaused is returned by Retry when there is no failed step.
	ErrNotPaused = errors.New("workflow is not paused")
	// ErrFinished is returned by Advance on a completed or cancelled
	// workflow.
	ErrFinished = errors.New("workflow already finished")
	// ErrSuperseded is returned by Advance when the instance was reset or
	// cancelled while a step was running; the step result is discarded.
	ErrSuperseded = errors.New("workflow was reset while the step was running")
)

// ErrorKind is the closed set of step failure kinds shown to the user.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindProof   ErrorKind = "proof"
	KindWallet  ErrorKind = "wallet"
	KindTimeout ErrorKind = "timeout"
	KindUnknown ErrorKind = "unknown"
)

// Recoverable reports whether retrying can help. Only unknown failures are
// not recoverable.
func (k ErrorKind) Recoverable() bool {
	return k != KindUnknown
}

// Classify maps an error to its kind using the code attached by the
// boundary that produced it. Deadline errors are timeouts regardless of
// their code.
func Classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	switch types.CodeOf(err) {
	case types.CodeNetwork:
		return KindNetwork
	case types.CodeProof:
		return KindProof
	case types.CodeWallet:
		return KindWallet
	case types.CodeTimeout:
		return KindTimeout
	default:
		return KindUnknown
	}
}

var kindText = map[ErrorKind][2]string{
	KindNetwork: {"Network error", "The network request failed. Check your connection and try again."},
	KindProof:   {"Proof generation failed", "The zero-knowledge proof could not be generated. Try again."},
	KindWallet:  {"Wallet error", "The wallet could not complete the request. Check your wallet and try again."},
	KindTimeout: {"Request timed out", "The operation took too long. Try again."},
	KindUnknown: {"Unexpected error", "Something went wrong and the operation cannot be retried."},
}

// StepError is the user facing failure of a step: a title, a message and
// the technical detail of the underlying error.
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Detail  string    `json:"detail"`
	StepID  string    `json:"stepId"`
	Err     error     `json:"-"`
}

// NewStepError classifies err as a failure of step.
func NewStepError(stepID string, err error) *StepError {
	kind := Classify(err)
	text := kindText[kind]
	return &StepError{
		Kind:    kind,
		Title:   text[0],
		Message: text[1],
		Detail:  err.Error(),
		StepID:  stepID,
		Err:     err,
	}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (%s): %s", e.StepID, e.Kind, e.Detail)
}

func (e *StepError) Unwrap() error { return e.Err }

// Recoverable reports whether the failed step can be retried.
func (e *StepError) Recoverable() bool { return e.Kind.Recoverable() }
