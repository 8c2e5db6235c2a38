package system

import (
	"fmt"
	"time"

	"github.com/hearthmud/server/internal/component"
	"github.com/hearthmud/server/internal/core/ecs"
	coresys "github.com/hearthmud/server/internal/core/system"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// IntScript is the slice of the Lua engine the systems call into.
type IntScript interface {
	CallInt(name string, fallback int, args ...int) int
}

// RegenSystem restores health on living entities every interval ticks.
// Corpses are excluded by the view. The amount comes from the Lua function
// regen_amount(current, max, regen) when defined, else the regen field.
type RegenSystem struct {
	world     *ecs.World
	view      *ecs.View
	script    IntScript
	log       *zap.Logger
	interval  int
	tickCount int
}

func NewRegenSystem(world *ecs.World, script IntScript, log *zap.Logger, intervalTicks int) (*RegenSystem, error) {
	view, err := world.View(ecs.ViewSpec{
		Required: []string{component.Health},
		Excluded: []string{component.Corpse},
	})
	if err != nil {
		return nil, fmt.Errorf("regen view: %w", err)
	}
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &RegenSystem{world: world, view: view, script: script, log: log, interval: intervalTicks}, nil
}

func (s *RegenSystem) Name() string         { return "regen" }
func (s *RegenSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *RegenSystem) Update(_ time.Duration) error {
	s.tickCount++
	if s.tickCount < s.interval {
		return nil
	}
	s.tickCount = 0

	var errs error
	s.view.Each(func(r ecs.Row) {
		if err := s.regen(r.Get(component.Health)); err != nil {
			s.log.Warn("regen failed", zap.String("entity", string(r.ID)), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	})
	return errs
}

func (s *RegenSystem) regen(h *ecs.Component) error {
	cur := ecs.FieldValue[int](h, component.HealthCurrent)
	maxHP := ecs.FieldValue[int](h, component.HealthMax)
	if cur <= 0 || cur >= maxHP {
		return nil
	}
	rate := ecs.FieldValue[int](h, component.HealthRegen)
	amount := rate
	if s.script != nil {
		amount = s.script.CallInt("regen_amount", rate, cur, maxHP, rate)
	}
	if amount <= 0 {
		return nil
	}
	return h.Set(component.HealthCurrent, min(cur+amount, maxHP))
}
