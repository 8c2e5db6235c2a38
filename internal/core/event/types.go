package event

import "github.com/hearthmud/server/internal/core/ecs"

// Lifecycle events published after each World flush.

type EntitySpawned struct {
	ID ecs.ID
}

type EntityDestroyed struct {
	ID ecs.ID
}

// LoadFinished is published once the world files reach their fixed point.
type LoadFinished struct {
	Entities int
	Files    int
}
