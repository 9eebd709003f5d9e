package workflow

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestReduceHappyPath(t *testing.T) {
	c := qt.New(t)
	s := Initial([]string{"a", "b"})

	s = Reduce(s, Start{})
	c.Assert(s.Phase, qt.Equals, PhaseRunning)
	c.Assert(s.StepID, qt.Equals, "a")

	s = Reduce(s, StepStarted{Index: 0})
	c.Assert(s.Processing, qt.IsTrue)
	s = Reduce(s, SubStepAdvanced{Index: 0, SubStep: 2})
	c.Assert(s.SubStep, qt.Equals, 2)
	s = Reduce(s, SubStepAdvanced{Index: 0, SubStep: 1})
	c.Assert(s.SubStep, qt.Equals, 2)

	prev := s
	s = Reduce(s, StepSucceeded{Index: 0, Output: "out-a"})
	c.Assert(s.StepID, qt.Equals, "b")
	c.Assert(s.Progress, qt.Equals, 0.5)
	c.Assert(s.Processing, qt.IsFalse)
	out, ok := s.Output("a")
	c.Assert(ok, qt.IsTrue)
	c.Assert(out, qt.Equals, "out-a")
	// Reduce never mutates its input.
	_, ok = prev.Output("a")
	c.Assert(ok, qt.IsFalse)

	s = Reduce(s, StepStarted{Index: 1})
	s = Reduce(s, StepSucceeded{Index: 1})
	c.Assert(s.Phase, qt.Equals, PhaseCompleted)
	c.Assert(s.Progress, qt.Equals, 1.0)
	c.Assert(s.Done(), qt.IsTrue)
}

func TestReduceFailureAndRetry(t *testing.T) {
	c := qt.New(t)
	s := Reduce(Initial([]string{"a", "b"}), Start{})
	s = Reduce(s, StepSucceeded{Index: 0, Output: 1})
	s = Reduce(s, StepStarted{Index: 1})

	stepErr := NewStepError("b", errors.New("boom"))
	s = Reduce(s, StepFailed{Index: 1, Err: stepErr})
	c.Assert(s.Phase, qt.Equals, PhasePaused)
	c.Assert(s.Err, qt.Equals, stepErr)
	c.Assert(s.StepIndex, qt.Equals, 1)

	s = Reduce(s, RetryRequested{})
	c.Assert(s.Phase, qt.Equals, PhaseRunning)
	c.Assert(s.StepIndex, qt.Equals, 0)
	c.Assert(s.Err, qt.IsNil)
	_, ok := s.Output("a")
	c.Assert(ok, qt.IsTrue)
}

func TestReduceIgnoresStaleGeneration(t *testing.T) {
	c := qt.New(t)
	s := Reduce(Initial([]string{"a"}), Start{})
	s = Reduce(s, StepStarted{Index: 0})

	s = Reduce(s, Reset{Gen: 0})
	c.Assert(s.Phase, qt.Equals, PhaseIdle)
	c.Assert(s.Generation, qt.Equals, uint64(1))

	// A late result of the first run does nothing.
	late := Reduce(s, StepSucceeded{Gen: 0, Index: 0, Output: "late"})
	c.Assert(late, qt.DeepEquals, s)
	late = Reduce(s, StepFailed{Gen: 0, Index: 0, Err: NewStepError("a", errors.New("x"))})
	c.Assert(late, qt.DeepEquals, s)
}

func TestReduceIgnoresOutOfPhaseActions(t *testing.T) {
	c := qt.New(t)
	idle := Initial([]string{"a"})
	c.Assert(Reduce(idle, StepSucceeded{Index: 0}), qt.DeepEquals, idle)
	c.Assert(Reduce(idle, RetryRequested{}), qt.DeepEquals, idle)

	running := Reduce(idle, Start{})
	c.Assert(Reduce(running, StepStarted{Index: 3}), qt.DeepEquals, running)

	cancelled := Reduce(running, Cancelled{})
	c.Assert(cancelled, qt.DeepEquals, Snapshot{Phase: PhaseIdle, Generation: 1, Steps: []string{"a"}})
	c.Assert(Reduce(cancelled, StepSucceeded{Index: 0}), qt.DeepEquals, cancelled)

	completed := Reduce(Reduce(running, StepStarted{Index: 0}), StepSucceeded{Index: 0, Output: "x"})
	c.Assert(completed.Phase, qt.Equals, PhaseCompleted)
	c.Assert(Reduce(completed, Cancelled{}), qt.DeepEquals, completed)

	empty := Reduce(Initial(nil), Start{})
	c.Assert(empty.Phase, qt.Equals, PhaseCompleted)
}
