package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/workflow"
)

// workflowEntry is a workflow instance owned by the API.
type workflowEntry struct {
	id      uuid.UUID
	kind    string
	wallet  string
	created time.Time
	inst    *workflow.Instance

	mu      sync.Mutex
	running bool
	lastErr error
}

// run executes fn in the background unless a run is already in progress.
func (e *workflowEntry) run(ctx context.Context, fn func(context.Context) (workflow.Snapshot, error)) bool {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return false
	}
	e.running = true
	e.lastErr = nil
	e.mu.Unlock()

	go func() {
		snap, err := fn(ctx)
		e.mu.Lock()
		defer e.mu.Unlock()
		e.running = false
		if _, isStep := workflow.IsStepError(err); err != nil && !isStep && !errors.Is(err, workflow.ErrSuperseded) {
			e.lastErr = err
		}
		log.Debugw("workflow run finished", "id", e.id.String(), "kind", e.kind, "phase", string(snap.Phase))
	}()
	return true
}

func (e *workflowEntry) response() *WorkflowResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	resp := &WorkflowResponse{
		ID:       e.id.String(),
		Kind:     e.kind,
		Wallet:   e.wallet,
		Created:  e.created,
		Running:  e.running,
		Snapshot: e.inst.Snapshot(),
	}
	if e.lastErr != nil {
		resp.LastError = e.lastErr.Error()
	}
	return resp
}

// registry holds the live workflows keyed by id.
type registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*workflowEntry
	max     int
}

func newRegistry(max int) *registry {
	return &registry{entries: make(map[uuid.UUID]*workflowEntry), max: max}
}

// add registers inst. Finished workflows are dropped first when the registry
// is full.
func (r *registry) add(kind, wallet string, inst *workflow.Instance) (*workflowEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.max {
		for id, e := range r.entries {
			if e.inst.Snapshot().Done() {
				delete(r.entries, id)
			}
		}
	}
	if len(r.entries) >= r.max {
		return nil, ErrWorkflowLimitExceeded
	}
	e := &workflowEntry{
		id:      uuid.New(),
		kind:    kind,
		wallet:  wallet,
		created: time.Now(),
		inst:    inst,
	}
	r.entries[e.id] = e
	return e, nil
}

func (r *registry) get(id uuid.UUID) (*workflowEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) remove(id uuid.UUID) (*workflowEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	return e, ok
}

func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.inst.Close()
		delete(r.entries, id)
	}
}

// entry resolves the workflow named in the URL, writing the error response
// when it does not exist.
func (a *API) entry(w http.ResponseWriter, r *http.Request) (*workflowEntry, bool) {
	id, err := uuid.Parse(chi.URLParam(r, WorkflowURLParam))
	if err != nil {
		ErrMalformedWorkflowID.WithErr(err).Write(w)
		return nil, false
	}
	e, ok := a.workflows.get(id)
	if !ok {
		ErrWorkflowNotFound.Write(w)
		return nil, false
	}
	return e, true
}

// newWorkflow creates a workflow for a wallet.
// POST /workflows
func (a *API) newWorkflow(w http.ResponseWriter, r *http.Request) {
	req := &NewWorkflowRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	wallet, err := types.NormalizeAddress(req.Wallet)
	if err != nil {
		ErrMalformedAddress.WithErr(err).Write(w)
		return
	}
	var inst *workflow.Instance
	switch req.Kind {
	case KindRegistration:
		inst = a.voter.Registration(wallet)
	case KindJoin:
		inst = a.voter.Join(wallet)
	case KindVote:
		if req.Weight == 0 {
			ErrInvalidVote.With("weight must be positive").Write(w)
			return
		}
		inst = a.voter.Vote(wallet, req.Option, req.Weight)
	default:
		ErrUnknownWorkflowKind.With(req.Kind).Write(w)
		return
	}
	e, err := a.workflows.add(req.Kind, wallet, inst)
	if err != nil {
		var apiErr Error
		if errors.As(err, &apiErr) {
			apiErr.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	log.Infow("workflow created", "id", e.id.String(), "kind", req.Kind, "wallet", wallet)
	httpWriteJSONStatus(w, http.StatusCreated, e.response())
}

// workflowStatus returns the snapshot of a workflow.
// GET /workflows/{workflowId}
func (a *API) workflowStatus(w http.ResponseWriter, r *http.Request) {
	e, ok := a.entry(w, r)
	if !ok {
		return
	}
	httpWriteJSON(w, e.response())
}

// advanceWorkflow runs an idle workflow in the background.
// POST /workflows/{workflowId}/advance
func (a *API) advanceWorkflow(w http.ResponseWriter, r *http.Request) {
	e, ok := a.entry(w, r)
	if !ok {
		return
	}
	switch snap := e.inst.Snapshot(); {
	case snap.Done():
		ErrWorkflowFinished.Write(w)
		return
	case snap.Phase == workflow.PhasePaused:
		ErrWorkflowPaused.Write(w)
		return
	}
	if !e.run(a.ctx, e.inst.Advance) {
		ErrWorkflowBusy.Write(w)
		return
	}
	httpWriteJSONStatus(w, http.StatusAccepted, e.response())
}

// retryWorkflow resumes a paused workflow in the background.
// POST /workflows/{workflowId}/retry
func (a *API) retryWorkflow(w http.ResponseWriter, r *http.Request) {
	e, ok := a.entry(w, r)
	if !ok {
		return
	}
	if e.inst.Snapshot().Phase != workflow.PhasePaused {
		ErrWorkflowNotPaused.Write(w)
		return
	}
	if !e.run(a.ctx, e.inst.Retry) {
		ErrWorkflowBusy.Write(w)
		return
	}
	httpWriteJSONStatus(w, http.StatusAccepted, e.response())
}

// cancelWorkflow cancels a workflow.
// POST /workflows/{workflowId}/cancel
func (a *API) cancelWorkflow(w http.ResponseWriter, r *http.Request) {
	e, ok := a.entry(w, r)
	if !ok {
		return
	}
	if err := e.inst.Cancel(); err != nil {
		switch {
		case errors.Is(err, workflow.ErrCancelNotAllowed):
			ErrCancelNotAllowed.Write(w)
		case errors.Is(err, workflow.ErrFinished):
			ErrWorkflowFinished.Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	httpWriteJSON(w, e.response())
}

// deleteWorkflow closes a workflow and forgets it.
// DELETE /workflows/{workflowId}
func (a *API) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	e, ok := a.entry(w, r)
	if !ok {
		return
	}
	e.inst.Close()
	a.workflows.remove(e.id)
	log.Infow("workflow deleted", "id", e.id.String(), "kind", e.kind)
	httpWriteOK(w)
}
