package system

import (
	"fmt"
	"time"

	"github.com/hearthmud/server/internal/component"
	"github.com/hearthmud/server/internal/core/ecs"
	coresys "github.com/hearthmud/server/internal/core/system"
	"go.uber.org/zap"
)

// AffectTickSystem counts down timed affects once per tick and removes the
// ones that run out. A duration of 0 never expires.
type AffectTickSystem struct {
	world *ecs.World
	view  *ecs.View
	log   *zap.Logger
}

func NewAffectTickSystem(world *ecs.World, log *zap.Logger) (*AffectTickSystem, error) {
	view, err := world.View(ecs.ViewSpec{Required: []string{component.Affect}})
	if err != nil {
		return nil, fmt.Errorf("affect view: %w", err)
	}
	return &AffectTickSystem{world: world, view: view, log: log}, nil
}

func (s *AffectTickSystem) Name() string         { return "affect-tick" }
func (s *AffectTickSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *AffectTickSystem) Update(_ time.Duration) error {
	var firstErr error
	// Rows are a per-tick snapshot, so removing instances here is safe.
	s.view.Each(func(r ecs.Row) {
		if !s.world.Exists(r.ID) {
			return
		}
		for _, c := range r.List(component.Affect) {
			left := ecs.FieldValue[int](c, component.AffectDuration)
			if left <= 0 {
				continue
			}
			var err error
			if left == 1 {
				_, err = s.world.RemoveComponent(r.ID, c)
				s.log.Debug("affect expired",
					zap.String("entity", string(r.ID)),
					zap.String("affect", ecs.FieldValue[string](c, component.AffectName)))
			} else {
				err = c.Set(component.AffectDuration, left-1)
			}
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("affect on %s: %w", r.ID, err)
			}
		}
	})
	return firstErr
}
