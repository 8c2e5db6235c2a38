package component

import "github.com/hearthmud/server/internal/core/ecs"

// Field positions. They follow declaration order in worldSchemas.
const (
	ViewableShort = iota
	ViewableLong
	ViewableKeywords
	ViewableDesc
)

const LocationRef = 0

const (
	ExitNorth = iota
	ExitSouth
	ExitEast
	ExitWest
	ExitUp
	ExitDown
)

const (
	ContainerContents = iota
	ContainerMaxVolume
)

const (
	ClosableClosed = iota
	ClosableLocked
	ClosableKey
	ClosablePickDifficulty
)

// Directions lists exit field names in field order.
var Directions = []string{"north", "south", "east", "west", "up", "down"}

func worldSchemas() []ecs.Schema {
	exits := make([]ecs.Field, len(Directions))
	for i, d := range Directions {
		exits[i] = ecs.Field{Name: d, Type: ecs.TypeEntity}
	}
	return []ecs.Schema{
		{
			Kind: Viewable, Unique: true, Persist: true,
			Fields: []ecs.Field{
				{Name: "short", Type: ecs.TypeString, Default: "something"},
				{Name: "long", Type: ecs.TypeString, Default: ""},
				{Name: "keywords", Type: ecs.TypeList, Default: []any{}, Freeze: true},
				{Name: "desc", Type: ecs.TypeString, Default: ""},
			},
		},
		{
			Kind: Location, Unique: true, Persist: true,
			Fields: []ecs.Field{
				{Name: "ref", Type: ecs.TypeEntity},
			},
		},
		{
			Kind: Exits, Unique: true, Persist: true,
			Fields: exits,
		},
		{
			Kind: Container, Unique: true, Persist: true,
			Fields: []ecs.Field{
				{Name: "contents", Type: ecs.TypeList, Default: []any{}, Clone: true},
				{Name: "max_volume", Type: ecs.TypeInt, Default: 0, Valid: ecs.Range(0, 1_000_000)},
			},
		},
		{
			Kind: Closable, Unique: true, Persist: true,
			Fields: []ecs.Field{
				{Name: "closed", Type: ecs.TypeBool, Default: true},
				{Name: "locked", Type: ecs.TypeBool, Default: false},
				{Name: "key", Type: ecs.TypeEntity},
				{Name: "pick_difficulty", Type: ecs.TypeInt, Default: 0, Valid: ecs.Range(0, 100)},
			},
		},
	}
}
