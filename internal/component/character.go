package component

import "github.com/hearthmud/server/internal/core/ecs"

const (
	HealthCurrent = iota
	HealthMax
	HealthRegen
)

const CorpseOwner = 0

const (
	AffectName = iota
	AffectDuration
	AffectModifiers
)

const (
	SpawnEntity = iota
	SpawnMin
	SpawnMax
	SpawnFrequency
)

func characterSchemas() []ecs.Schema {
	return []ecs.Schema{
		{
			Kind: Health, Unique: true, Persist: true,
			Fields: []ecs.Field{
				{Name: "current", Type: ecs.TypeInt, Default: 1},
				{Name: "max", Type: ecs.TypeInt, Default: 1, Valid: ecs.Range(1, 1_000_000)},
				// points restored per regen interval
				{Name: "regen", Type: ecs.TypeInt, Default: 1, Valid: ecs.Range(0, 1_000)},
			},
		},
		{
			Kind: Corpse, Unique: true, Persist: true,
			Fields: []ecs.Field{
				{Name: "owner", Type: ecs.TypeEntity},
			},
		},
		{
			Kind: Affect, Persist: true,
			Fields: []ecs.Field{
				{Name: "name", Type: ecs.TypeString},
				{Name: "duration", Type: ecs.TypeInt, Default: 0},
				{Name: "modifiers", Type: ecs.TypeMap, Default: map[string]any{}, Clone: true},
			},
		},
		{
			Kind: Spawn, Persist: true,
			Fields: []ecs.Field{
				{Name: "entity", Type: ecs.TypeEntity},
				{Name: "min", Type: ecs.TypeInt, Default: 0, Valid: ecs.Range(0, 1_000)},
				{Name: "max", Type: ecs.TypeInt, Default: 1, Valid: ecs.Range(0, 1_000)},
				{Name: "frequency", Type: ecs.TypeInt, Default: 60, Valid: ecs.Range(1, 86_400)},
			},
		},
	}
}
