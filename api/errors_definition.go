//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill it in: that code was used in the past and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound      = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrWorkflowNotFound      = Error{Code: 40002, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("workflow not found")}
	ErrMalformedWorkflowID   = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed workflow ID")}
	ErrMalformedBody         = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrUnknownWorkflowKind   = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown workflow kind")}
	ErrMalformedAddress      = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrInvalidVote           = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote")}
	ErrWorkflowBusy          = Error{Code: 40008, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("workflow is running")}
	ErrWorkflowNotPaused     = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("workflow is not paused")}
	ErrWorkflowFinished      = Error{Code: 40010, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("workflow already finished")}
	ErrCancelNotAllowed      = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("cannot cancel while waiting for confirmation")}
	ErrQueryNotFound         = Error{Code: 40012, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("query not found")}
	ErrWorkflowLimitExceeded = Error{Code: 40013, HTTPstatus: http.StatusTooManyRequests, Err: fmt.Errorf("too many workflows")}
	ErrWorkflowPaused        = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("workflow is paused, retry it")}
	ErrMalformedParam        = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrQueryRefreshFailed         = Error{Code: 50003, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("query refresh failed")}
)
