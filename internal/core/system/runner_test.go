package system

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSystem struct {
	name  string
	phase Phase
	trace *[]string
	fn    func() error
}

func (f *fakeSystem) Name() string { return f.name }
func (f *fakeSystem) Phase() Phase { return f.phase }
func (f *fakeSystem) Update(time.Duration) error {
	*f.trace = append(*f.trace, f.name)
	if f.fn != nil {
		return f.fn()
	}
	return nil
}

func TestRunnerPhaseOrder(t *testing.T) {
	var trace []string
	r := NewRunner(zap.NewNop())
	r.Register(&fakeSystem{name: "cleanup", phase: PhaseCleanup, trace: &trace})
	r.Register(&fakeSystem{name: "combat", phase: PhaseUpdate, trace: &trace})
	r.Register(&fakeSystem{name: "events", phase: PhasePreUpdate, trace: &trace})
	r.Register(&fakeSystem{name: "commands", phase: PhaseUpdate, trace: &trace})

	require.Zero(t, r.Tick(time.Millisecond))
	require.Equal(t, []string{"events", "combat", "commands", "cleanup"}, trace)
	require.Equal(t, uint64(1), r.Ticks())
}

func TestRunnerIsolatesFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	var trace []string
	r := NewRunner(zap.New(core))
	r.Register(&fakeSystem{name: "panics", phase: PhaseUpdate, trace: &trace, fn: func() error {
		panic("boom")
	}})
	r.Register(&fakeSystem{name: "errors", phase: PhaseUpdate, trace: &trace, fn: func() error {
		return errors.New("bad entity")
	}})
	r.Register(&fakeSystem{name: "cleanup", phase: PhaseCleanup, trace: &trace})

	require.Equal(t, 2, r.Tick(time.Millisecond))
	require.Equal(t, []string{"panics", "errors", "cleanup"}, trace)
	require.Equal(t, 2, logs.FilterMessage("system failed").Len())
}
