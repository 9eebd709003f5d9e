package workflow

import "maps"

// Phase tags the state of a workflow instance.
type Phase string

const (
	// PhaseIdle: not started, or reset.
	PhaseIdle Phase = "idle"
	// PhaseRunning: steps are being executed; StepIndex is the next or
	// current step.
	PhaseRunning Phase = "running"
	// PhasePaused: a step failed; Err is set and StepIndex is the failed
	// step.
	PhasePaused Phase = "paused"
	// PhaseCompleted: every step succeeded.
	PhaseCompleted Phase = "completed"
)

// Snapshot is an immutable view of a workflow instance. Which fields are
// meaningful depends on Phase. Snapshots are only produced by Reduce.
type Snapshot struct {
	Phase      Phase          `json:"phase"`
	Generation uint64         `json:"generation"`
	Steps      []string       `json:"steps"`
	StepIndex  int            `json:"stepIndex"`
	StepID     string         `json:"stepId,omitempty"`
	Progress   float64        `json:"progress"`
	SubStep    int            `json:"subStep"`
	Processing bool           `json:"processing"`
	Err        *StepError     `json:"error,omitempty"`
	Outputs    map[string]any `json:"-"`
}

// Initial returns the idle snapshot of a workflow with the given step ids.
func Initial(steps []string) Snapshot {
	return Snapshot{Phase: PhaseIdle, Steps: steps}
}

// Output returns the cached output of a step.
func (s Snapshot) Output(stepID string) (any, bool) {
	v, ok := s.Outputs[stepID]
	return v, ok
}

// Done reports whether the instance reached its terminal phase.
func (s Snapshot) Done() bool {
	return s.Phase == PhaseCompleted
}

func (s Snapshot) reset() Snapshot {
	return Snapshot{Phase: PhaseIdle, Generation: s.Generation + 1, Steps: s.Steps}
}

func (s Snapshot) withStep(index int) Snapshot {
	s.StepIndex = index
	s.StepID = ""
	if index < len(s.Steps) {
		s.StepID = s.Steps[index]
	}
	if len(s.Steps) > 0 {
		s.Progress = float64(index) / float64(len(s.Steps))
	}
	return s
}

// Action is an event applied by Reduce. Every action carries the
// generation of the instance it was emitted for.
type Action interface {
	generation() uint64
}

type (
	// Start begins running an idle instance.
	Start struct{ Gen uint64 }
	// StepStarted marks step Index as in flight.
	StepStarted struct {
		Gen   uint64
		Index int
	}
	// SubStepAdvanced reports progress inside a running step.
	SubStepAdvanced struct {
		Gen     uint64
		Index   int
		SubStep int
	}
	// StepSucceeded records the output of step Index and moves on.
	StepSucceeded struct {
		Gen    uint64
		Index  int
		Output any
	}
	// StepFailed pauses the instance on step Index.
	StepFailed struct {
		Gen   uint64
		Index int
		Err   *StepError
	}
	// RetryRequested resumes a paused instance from the first step.
	RetryRequested struct{ Gen uint64 }
	// Cancelled drops all progress of an unfinished instance and starts a
	// new generation, like Reset.
	Cancelled struct{ Gen uint64 }
	// Reset drops all progress and starts a new generation.
	Reset struct{ Gen uint64 }
)

func (a Start) generation() uint64           { return a.Gen }
func (a StepStarted) generation() uint64     { return a.Gen }
func (a SubStepAdvanced) generation() uint64 { return a.Gen }
func (a StepSucceeded) generation() uint64   { return a.Gen }
func (a StepFailed) generation() uint64      { return a.Gen }
func (a RetryRequested) generation() uint64  { return a.Gen }
func (a Cancelled) generation() uint64       { return a.Gen }
func (a Reset) generation() uint64           { return a.Gen }

// Reduce applies a to s and returns the next snapshot. It has no side
// effects. Actions from an older generation, and actions that make no sense
// in the current phase, leave s unchanged.
func Reduce(s Snapshot, a Action) Snapshot {
	if a.generation() != s.Generation {
		return s
	}
	switch a := a.(type) {
	case Reset:
		return s.reset()
	case Start:
		if s.Phase != PhaseIdle {
			return s
		}
		s = s.withStep(0)
		s.Phase = PhaseRunning
		if len(s.Steps) == 0 {
			s.Phase = PhaseCompleted
			s.Progress = 1
		}
		return s
	case StepStarted:
		if s.Phase != PhaseRunning || a.Index != s.StepIndex {
			return s
		}
		s.Processing = true
		s.SubStep = 0
		return s
	case SubStepAdvanced:
		if s.Phase != PhaseRunning || !s.Processing || a.Index != s.StepIndex || a.SubStep < s.SubStep {
			return s
		}
		s.SubStep = a.SubStep
		return s
	case StepSucceeded:
		if s.Phase != PhaseRunning || a.Index != s.StepIndex {
			return s
		}
		outputs := maps.Clone(s.Outputs)
		if outputs == nil {
			outputs = make(map[string]any, len(s.Steps))
		}
		outputs[s.StepID] = a.Output
		s.Outputs = outputs
		s.Processing = false
		s.SubStep = 0
		s.Err = nil
		s = s.withStep(s.StepIndex + 1)
		if s.StepIndex >= len(s.Steps) {
			s.Phase = PhaseCompleted
			s.Progress = 1
		}
		return s
	case StepFailed:
		if s.Phase != PhaseRunning || a.Index != s.StepIndex {
			return s
		}
		s.Phase = PhasePaused
		s.Processing = false
		s.Err = a.Err
		return s
	case RetryRequested:
		if s.Phase != PhasePaused {
			return s
		}
		s = s.withStep(0)
		s.Phase = PhaseRunning
		s.Err = nil
		s.SubStep = 0
		return s
	case Cancelled:
		if s.Done() {
			return s
		}
		return s.reset()
	}
	return s
}
