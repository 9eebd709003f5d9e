package api

import (
	"time"

	"github.com/vocdoni/maci-voter/workflow"
)

// Workflow kinds accepted by POST /workflows.
const (
	KindRegistration = "registration"
	KindJoin         = "join"
	KindVote         = "vote"
)

// NewWorkflowRequest creates a workflow for a wallet. Option and Weight are
// only used by votes.
type NewWorkflowRequest struct {
	Kind   string `json:"kind"`
	Wallet string `json:"wallet"`
	Option uint64 `json:"option,omitempty"`
	Weight uint64 `json:"weight,omitempty"`
}

// WorkflowResponse is the state of a workflow. LastError carries the error
// of the last background run when it did not pause the workflow, such as a
// missing wallet or an input that is not ready yet.
type WorkflowResponse struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Wallet    string            `json:"wallet"`
	Created   time.Time         `json:"created"`
	Running   bool              `json:"running"`
	Snapshot  workflow.Snapshot `json:"snapshot"`
	LastError string            `json:"lastError,omitempty"`
}
