// Package component defines the built-in component kinds every world uses.
// Additional kinds can be declared in data files (see package data).
package component

import (
	"github.com/hearthmud/server/internal/core/ecs"
	"go.uber.org/multierr"
)

// Built-in kind names.
const (
	Viewable   = "viewable"
	Location   = "location"
	Exits      = "exits"
	Container  = "container"
	Closable   = "closable"
	Health     = "health"
	Corpse     = "corpse"
	Affect     = "affect"
	Spawn      = "spawn"
	Player     = "player"
	Connection = "connection"
)

// Register defines every built-in kind in reg.
func Register(reg *ecs.Registry) error {
	var errs error
	for _, s := range builtins() {
		_, err := reg.Define(s)
		errs = multierr.Append(errs, err)
	}
	return errs
}

func builtins() []ecs.Schema {
	var out []ecs.Schema
	out = append(out, worldSchemas()...)
	out = append(out, characterSchemas()...)
	out = append(out, playerSchemas()...)
	return out
}
