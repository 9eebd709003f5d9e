package artifacts

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/aws/smithy-go"
	"github.com/vocdoni/maci-voter/types"
)

// Code classifies a download failure.
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
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.CodeTimeout
	}
	var se *StatusError
	if errors.As(err, &se) {
		return types.CodeNetwork
	}
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return types.CodeNetwork
	}
	// S3 service errors such as NoSuchKey or AccessDenied
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return types.CodeNetwork
	}
	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.As(err, &netErr) {
		return types.CodeNetwork
	}
	if errors.Is(err, ErrHashMismatch) {
		return types.CodeNetwork
	}
	return types.CodeUnknown
}
