package data

import (
	"fmt"

	"github.com/hearthmud/server/internal/component"
	"github.com/hearthmud/server/internal/core/ecs"
)

// NewRegistry defines the built-in kinds plus every kind declared under
// schemaDir. It returns how many kinds came from data files.
func NewRegistry(schemaDir string, rules RuleCompiler) (*ecs.Registry, int, error) {
	reg := ecs.NewRegistry()
	if err := component.Register(reg); err != nil {
		return nil, 0, fmt.Errorf("built-in kinds: %w", err)
	}
	n, err := LoadSchemaDir(schemaDir, reg, rules)
	if err != nil {
		return nil, n, fmt.Errorf("schema %s: %w", schemaDir, err)
	}
	return reg, n, nil
}
