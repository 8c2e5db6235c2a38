package component

import "github.com/hearthmud/server/internal/core/ecs"

const (
	PlayerAccount = iota
	PlayerAccessLevel
)

// ConnectionSession links an entity to its network session. The session
// itself lives in the transport layer.
const ConnectionSession = 0

func playerSchemas() []ecs.Schema {
	return []ecs.Schema{
		{
			Kind: Player, Unique: true, Persist: true,
			Fields: []ecs.Field{
				{Name: "account", Type: ecs.TypeString, Default: ""},
				{Name: "access_level", Type: ecs.TypeString, Default: "player", Valid: ecs.OneOf("player", "builder", "admin")},
			},
		},
		{
			Kind: Connection, Unique: true,
			Fields: []ecs.Field{
				{Name: "session", Type: ecs.TypeInt, Default: 0},
			},
		},
	}
}
