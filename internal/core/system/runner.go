package system

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. A system that returns
// an error or panics is logged and the tick continues with the next one.
type Runner struct {
	systems []System
	sorted  bool
	log     *zap.Logger
	ticks   uint64
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		log:     log,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Ticks returns how many ticks have run.
func (r *Runner) Ticks() uint64 { return r.ticks }

// Tick runs every system once and returns how many of them failed.
func (r *Runner) Tick(dt time.Duration) int {
	r.ensureSorted()
	r.ticks++
	failed := 0
	for _, s := range r.systems {
		if err := r.run(s, dt); err != nil {
			failed++
			r.log.Error("system failed",
				zap.String("system", s.Name()),
				zap.Stringer("phase", s.Phase()),
				zap.Uint64("tick", r.ticks),
				zap.Error(err),
			)
		}
	}
	return failed
}

func (r *Runner) run(s System, dt time.Duration) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Update(dt)
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		// Stable: systems within a phase keep registration order.
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
