package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhasePreUpdate  Phase = iota // 0: deliver last tick's events
	PhaseUpdate                  // 1: game logic (combat, commands)
	PhasePostUpdate              // 2: regen, spawn, decay
	PhasePersist                 // 3: periodic snapshot save
	PhaseCleanup                 // 4: destroy queued entities, flush views
)

var phaseNames = [...]string{"pre-update", "update", "post-update", "persist", "cleanup"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// System is the interface every tick system implements.
type System interface {
	Name() string
	Phase() Phase
	Update(dt time.Duration) error
}
