// Package workflow runs multi-step operations (download artifacts, generate
// a proof, send a transaction, wait for it) as a sequence of steps with a
// closed error taxonomy and retry. The state of an instance is an immutable
// Snapshot that only changes through Reduce.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/types"
)

// Step is one unit of a workflow.
type Step struct {
	ID          string
	Description string
	// SubSteps are the labels of the progress stages reported through
	// StepContext.SubStep.
	SubSteps []string
	// AwaitsConfirmation marks steps that wait for an on-chain result;
	// the workflow cannot be cancelled while one of them runs.
	AwaitsConfirmation bool
	Run                func(ctx context.Context, sc *StepContext) (any, error)
}

// StepContext gives a running step access to earlier outputs and lets it
// report sub-step progress.
type StepContext struct {
	outputs map[string]any
	subStep func(int)
	steps   int
}

// Output returns the output of an earlier step.
func (sc *StepContext) Output(stepID string) (any, bool) {
	v, ok := sc.outputs[stepID]
	return v, ok
}

// SubStep reports that the step reached sub-step i. Progress never moves
// backwards.
func (sc *StepContext) SubStep(i int) {
	sc.subStep(i)
}

// Simulate advances the sub-steps on a fixed interval, for operations that
// report no progress of their own, stopping on the last one. The returned
// function stops the simulation.
func (sc *StepContext) Simulate(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 1; i < sc.steps; i++ {
			select {
			case <-done:
				return
			case <-ticker.C:
				sc.subStep(i)
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// OutputOf returns the output of an earlier step with its concrete type.
func OutputOf[T any](sc *StepContext, stepID string) (T, error) {
	var zero T
	v, ok := sc.Output(stepID)
	if !ok {
		return zero, fmt.Errorf("no output for step %q", stepID)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("output of step %q has type %T, want %T", stepID, v, zero)
	}
	return t, nil
}

// Option configures an Instance.
type Option func(*Instance)

// WithStepTimeout bounds the duration of every step.
func WithStepTimeout(d time.Duration) Option {
	return func(i *Instance) { i.stepTimeout = d }
}

// Instance is a running workflow.
type Instance struct {
	name        string
	steps       []Step
	stepTimeout time.Duration

	runMu sync.Mutex // one Advance at a time

	mu        sync.Mutex
	snap      Snapshot
	subs      map[int]func(Snapshot)
	nextSub   int
	cancelRun context.CancelFunc
}

// New creates an idle instance.
func New(name string, steps []Step, opts ...Option) *Instance {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	inst := &Instance{
		name:  name,
		steps: steps,
		snap:  Initial(ids),
		subs:  make(map[int]func(Snapshot)),
	}
	for _, o := range opts {
		o(inst)
	}
	return inst
}

// Name returns the workflow name.
func (i *Instance) Name() string { return i.name }

// Snapshot returns the current state.
func (i *Instance) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snap
}

// Subscribe registers fn to be called with every new snapshot. The returned
// function unregisters it.
func (i *Instance) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := i.nextSub
	i.nextSub++
	i.subs[id] = fn
	return func() {
		i.mu.Lock()
		delete(i.subs, id)
		i.mu.Unlock()
	}
}

// dispatch applies a and notifies subscribers if the snapshot changed.
func (i *Instance) dispatch(a Action) Snapshot {
	i.mu.Lock()
	prev := i.snap
	next := Reduce(prev, a)
	i.snap = next
	var subs []func(Snapshot)
	if !sameSnapshot(prev, next) {
		for _, fn := range i.subs {
			subs = append(subs, fn)
		}
	}
	i.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
	return next
}

func sameSnapshot(a, b Snapshot) bool {
	return a.Phase == b.Phase && a.Generation == b.Generation && a.StepIndex == b.StepIndex &&
		a.SubStep == b.SubStep && a.Processing == b.Processing && a.Err == b.Err &&
		len(a.Outputs) == len(b.Outputs)
}

// Advance runs the remaining steps in order until the workflow completes or
// a step fails. A step whose output is already cached is not run again.
//
// A failing step pauses the instance and its classified *StepError is
// returned. Local errors (missing wallet, rejected signature, missing
// inputs) are returned as-is and reset the instance to idle, since retrying
// cannot fix them.
func (i *Instance) Advance(ctx context.Context) (Snapshot, error) {
	i.runMu.Lock()
	defer i.runMu.Unlock()

	snap := i.Snapshot()
	switch snap.Phase {
	case PhaseIdle:
		snap = i.dispatch(Start{Gen: snap.Generation})
	case PhasePaused:
		if snap.Err == nil {
			return snap, ErrNotPaused
		}
		return snap, snap.Err
	case PhaseCompleted:
		return snap, ErrFinished
	}
	gen := snap.Generation

	for snap.Phase == PhaseRunning {
		idx := snap.StepIndex
		step := i.steps[idx]
		if out, ok := snap.Output(step.ID); ok {
			log.Debugw("workflow step cached", "workflow", i.name, "step", step.ID)
			snap = i.dispatch(StepSucceeded{Gen: gen, Index: idx, Output: out})
			continue
		}
		out, err := i.runStep(ctx, gen, idx, step, snap.Outputs)

		current := i.Snapshot()
		if current.Generation != gen || current.Phase != PhaseRunning {
			log.Infow("discarding late step result", "workflow", i.name, "step", step.ID)
			return current, ErrSuperseded
		}
		if err != nil {
			if types.IsLocal(err) {
				log.Infow("workflow step needs user action", "workflow", i.name, "step", step.ID, "error", err.Error())
				return i.dispatch(Reset{Gen: gen}), err
			}
			stepErr := NewStepError(step.ID, err)
			log.Warnw("workflow step failed", "workflow", i.name, "step", step.ID,
				"kind", string(stepErr.Kind), "error", err.Error())
			return i.dispatch(StepFailed{Gen: gen, Index: idx, Err: stepErr}), stepErr
		}
		log.Infow("workflow step completed", "workflow", i.name, "step", step.ID)
		snap = i.dispatch(StepSucceeded{Gen: gen, Index: idx, Output: out})
	}
	return snap, nil
}

func (i *Instance) runStep(ctx context.Context, gen uint64, idx int, step Step, outputs map[string]any) (out any, err error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if i.stepTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, i.stepTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	i.mu.Lock()
	i.cancelRun = cancel
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.cancelRun = nil
		i.mu.Unlock()
	}()

	i.dispatch(StepStarted{Gen: gen, Index: idx})
	sc := &StepContext{
		outputs: outputs,
		steps:   len(step.SubSteps),
		subStep: func(n int) {
			i.dispatch(SubStepAdvanced{Gen: gen, Index: idx, SubStep: n})
		},
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", step.ID, r)
		}
	}()
	return step.Run(runCtx, sc)
}

// Retry resumes a paused instance. Execution re-enters from the first step;
// steps that already produced an output are skipped, so only the failed step
// and the ones after it run again.
func (i *Instance) Retry(ctx context.Context) (Snapshot, error) {
	snap := i.Snapshot()
	if snap.Phase != PhasePaused {
		return snap, ErrNotPaused
	}
	if snap.Err != nil && !snap.Err.Recoverable() {
		log.Warnw("retrying a non recoverable failure", "workflow", i.name, "step", snap.Err.StepID)
	}
	i.dispatch(RetryRequested{Gen: snap.Generation})
	return i.Advance(ctx)
}

// Cancel stops the workflow and resets it: cached outputs and the last error
// are dropped, and the next Advance starts again from the first step. A
// running step is asked to stop through its context and its late result is
// ignored. Cancelling is refused while a step awaits an on-chain
// confirmation, and on a completed workflow.
func (i *Instance) Cancel() error {
	i.mu.Lock()
	snap := i.snap
	cancel := i.cancelRun
	i.mu.Unlock()
	if snap.Processing && snap.StepIndex < len(i.steps) && i.steps[snap.StepIndex].AwaitsConfirmation {
		return ErrCancelNotAllowed
	}
	if snap.Done() {
		return ErrFinished
	}
	i.dispatch(Cancelled{Gen: snap.Generation})
	if cancel != nil {
		cancel()
	}
	log.Infow("workflow cancelled", "workflow", i.name, "step", snap.StepID)
	return nil
}

// Close resets the instance to idle, dropping cached outputs. Unlike
// Cancel it is always allowed.
func (i *Instance) Close() {
	i.mu.Lock()
	gen := i.snap.Generation
	cancel := i.cancelRun
	i.mu.Unlock()
	i.dispatch(Reset{Gen: gen})
	if cancel != nil {
		cancel()
	}
}

// IsStepError reports whether err is a classified step failure and
// returns it.
func IsStepError(err error) (*StepError, bool) {
	var se *StepError
	ok := errors.As(err, &se)
	return se, ok
}
