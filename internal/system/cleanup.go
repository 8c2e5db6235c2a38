package system

import (
	"time"

	"github.com/hearthmud/server/internal/core/ecs"
	"github.com/hearthmud/server/internal/core/event"
	coresys "github.com/hearthmud/server/internal/core/system"
)

// CleanupSystem ends every tick: it destroys queued entities, flushes the
// World so Views see this tick's changes, and publishes the lifecycle
// events for next tick.
type CleanupSystem struct {
	world *ecs.World
	bus   *event.Bus
}

func NewCleanupSystem(world *ecs.World, bus *event.Bus) *CleanupSystem {
	return &CleanupSystem{world: world, bus: bus}
}

func (s *CleanupSystem) Name() string         { return "cleanup" }
func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) error {
	s.world.FlushDestroyQueue()
	res := s.world.Flush()
	for _, id := range res.Spawned {
		event.Emit(s.bus, event.EntitySpawned{ID: id})
	}
	for _, id := range res.Destroyed {
		event.Emit(s.bus, event.EntityDestroyed{ID: id})
	}
	return nil
}
