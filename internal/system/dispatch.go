package system

import (
	"time"

	"github.com/hearthmud/server/internal/core/event"
	coresys "github.com/hearthmud/server/internal/core/system"
)

// EventDispatchSystem delivers the previous tick's events at tick start.
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Name() string         { return "event-dispatch" }
func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventDispatchSystem) Update(_ time.Duration) error {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
	return nil
}
