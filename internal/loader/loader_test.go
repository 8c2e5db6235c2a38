package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hearthmud/server/internal/core/ecs"
	"github.com/hearthmud/server/internal/data"
	"github.com/hearthmud/server/internal/scripting"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testWorld(t *testing.T) *ecs.World {
	t.Helper()
	reg := ecs.NewRegistry()
	reg.MustDefine(ecs.Schema{
		Kind:   "viewable",
		Unique: true,
		Fields: []ecs.Field{
			{Name: "short", Type: ecs.TypeString, Default: "thing"},
			{Name: "long", Type: ecs.TypeString},
		},
	})
	reg.MustDefine(ecs.Schema{
		Kind:   "closable",
		Unique: true,
		Fields: []ecs.Field{
			{Name: "closed", Type: ecs.TypeBool, Default: true},
			{Name: "locked", Type: ecs.TypeBool, Default: false},
		},
	})
	reg.MustDefine(ecs.Schema{
		Kind:   "weight",
		Unique: true,
		Fields: []ecs.Field{{Name: "kg", Type: ecs.TypeFloat, Default: 1.0, Valid: ecs.Range(0, 500)}},
	})
	reg.MustDefine(ecs.Schema{
		Kind:   "location",
		Unique: true,
		Fields: []ecs.Field{{Name: "ref", Type: ecs.TypeEntity}},
	})
	reg.MustDefine(ecs.Schema{
		Kind: "affect",
		Fields: []ecs.Field{
			{Name: "name", Type: ecs.TypeString},
			{Name: "duration", Type: ecs.TypeInt, Default: 0},
		},
	})
	return ecs.NewWorld(reg)
}

func load(t *testing.T, w *ecs.World, src string) error {
	t.Helper()
	l := New(w, zap.NewNop())
	recs, err := Parse("test.yaml", strings.NewReader(src))
	require.NoError(t, err)
	if err := l.Apply(recs); err != nil {
		return err
	}
	return l.Finalize()
}

func TestForwardReference(t *testing.T) {
	w := testWorld(t)
	err := load(t, w, `
- id: b
  base: [a]
- id: a
  components:
    - closable: {locked: true}
`)
	require.NoError(t, err)
	require.True(t, w.Exists("a"))
	require.True(t, w.Exists("b"))

	c, err := w.Get("b", "closable")
	require.NoError(t, err)
	require.Equal(t, true, c.Get(1))

	bases, err := w.Bases("b")
	require.NoError(t, err)
	require.Equal(t, []ecs.ID{"a"}, bases)
}

func TestCycleFails(t *testing.T) {
	w := testWorld(t)
	err := load(t, w, `
- id: x
  base: [y]
- id: y
  base: [x]
`)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	require.Len(t, le.Unresolved, 2)
	require.Equal(t, "create x", le.Unresolved[0].Action)
	require.Equal(t, "create y", le.Unresolved[1].Action)
	require.Equal(t, 2, le.Unresolved[0].Loc.Line)
	require.ErrorIs(t, err, ecs.ErrUnknownID)
	require.False(t, w.Exists("x"))
	require.False(t, w.Exists("y"))
}

func TestComponentForms(t *testing.T) {
	w := testWorld(t)
	err := load(t, w, `
- id: crate
  components:
    - viewable
    - weight: 12.5
    - closable: [false, true]
    - affect: {name: heavy}
    - affect: {name: dusty, duration: 3}
`)
	require.NoError(t, err)

	v, err := w.Get("crate", "viewable")
	require.NoError(t, err)
	require.Equal(t, "thing", v.Get(0))

	kg, err := w.Get("crate", "weight")
	require.NoError(t, err)
	require.Equal(t, 12.5, kg.Get(0))

	cl, err := w.Get("crate", "closable")
	require.NoError(t, err)
	require.Equal(t, false, cl.Get(0))
	require.Equal(t, true, cl.Get(1))

	all, err := w.GetAll("crate", "affect")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 3, all[1].Get(1))
}

func TestUpdateRecords(t *testing.T) {
	w := testWorld(t)
	err := load(t, w, `
- update: door
  base: [heavy]
  remove: [closable]
  components:
    - viewable: {short: a heavy door}
- id: heavy
  components:
    - weight: 90
- id: door
  components:
    - closable
    - viewable: {long: It is a door.}
`)
	require.NoError(t, err)

	c, err := w.Get("door", "closable")
	require.NoError(t, err)
	require.Nil(t, c)

	v, err := w.Get("door", "viewable")
	require.NoError(t, err)
	require.Equal(t, "a heavy door", v.Get(0))
	require.Equal(t, "It is a door.", v.Get(1))

	kg, err := w.Get("door", "weight")
	require.NoError(t, err)
	require.Equal(t, 90.0, kg.Get(0))

	bases, err := w.Bases("door")
	require.NoError(t, err)
	require.Equal(t, []ecs.ID{"heavy"}, bases)
}

func TestDeferredUpdateKeepsSourceOrder(t *testing.T) {
	w := testWorld(t)
	err := load(t, w, `
- id: door
  components:
    - viewable: {short: a door}
- update: door
  base: [heavy]
  components:
    - viewable: {short: a heavy door}
- update: door
  components:
    - viewable: {short: an iron door}
- id: heavy
  components:
    - weight: 90
`)
	require.NoError(t, err)

	v, err := w.Get("door", "viewable")
	require.NoError(t, err)
	require.Equal(t, "an iron door", v.Get(0))

	kg, err := w.Get("door", "weight")
	require.NoError(t, err)
	require.Equal(t, 90.0, kg.Get(0))
}

func TestEntityLinks(t *testing.T) {
	t.Run("forward link resolves", func(t *testing.T) {
		w := testWorld(t)
		err := load(t, w, `
- id: sword
  components:
    - location: room/armory
- id: room/armory
`)
		require.NoError(t, err)
	})

	t.Run("dangling link fails", func(t *testing.T) {
		w := testWorld(t)
		err := load(t, w, `
- id: sword
  components:
    - location: room/nowhere
`)
		var le *LoadError
		require.True(t, errors.As(err, &le))
		require.Len(t, le.Unresolved, 1)
		require.Equal(t, "link sword.location.ref", le.Unresolved[0].Action)
		require.Contains(t, err.Error(), "room/nowhere")
	})
}

func TestFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"duplicate id", "- id: a\n- id: a\n", ecs.ErrDuplicateID},
		{"unknown kind", "- id: a\n  components: [teleporter]\n", ecs.ErrUnknownComponent},
		{"bad value", "- id: a\n  components:\n    - weight: 9000\n", ecs.ErrInvalidValue},
		{"unknown field", "- id: a\n  components:\n    - closable: {hinges: 2}\n", ecs.ErrInvalidValue},
		{"scalar for multi-field kind", "- id: a\n  components:\n    - closable: yes\n", ecs.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := load(t, testWorld(t), tt.src)
			require.ErrorIs(t, err, tt.want)
			require.Contains(t, err.Error(), "test.yaml:")
		})
	}
}

func TestInvalidValueNotDeferred(t *testing.T) {
	// an invalid value behind a missing base still fails once the base shows up
	w := testWorld(t)
	l := New(w, zap.NewNop())
	recs, err := Parse("t.yaml", strings.NewReader(`
- id: b
  base: [a]
  components:
    - weight: -4
- id: a
`))
	require.NoError(t, err)
	require.NoError(t, l.Apply(recs))
	require.Equal(t, 1, l.Deferred())

	err = l.Finalize()
	require.ErrorIs(t, err, ecs.ErrInvalidValue)
	var le *LoadError
	require.False(t, errors.As(err, &le))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unknown key", "- id: a\n  colour: red\n", `unknown key "colour"`},
		{"id and update", "- id: a\n  update: b\n", "mutually exclusive"},
		{"neither", "- base: [a]\n", "needs an id"},
		{"remove on create", "- id: a\n  remove: [closable]\n", "only valid on update"},
		{"not a list", "id: a\n", "expected a list"},
		{"two kinds in one entry", "- id: a\n  components:\n    - {viewable: {}, closable: {}}\n", "exactly one kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", strings.NewReader(tt.src))
			require.ErrorContains(t, err, tt.msg)
			var pe *ParseError
			if errors.As(err, &pe) {
				require.Equal(t, "bad.yaml", pe.Loc.File)
				require.Positive(t, pe.Loc.Line)
			}
		})
	}
}

func TestParseNormalizesIDs(t *testing.T) {
	// e followed by a combining acute accent
	recs, err := Parse("n.yaml", strings.NewReader("- id: \"cafe\\u0301\"\n"))
	require.NoError(t, err)
	require.Equal(t, ecs.ID("caf\u00e9"), recs[0].ID)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "zone"), 0o755))
	// the room lives in a later file than the sword that references it
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_items.yaml"), []byte(`
- id: sword
  base: [proto/weapon]
  components:
    - location: zone/hall
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_protos.yml"), []byte(`
- id: proto/weapon
  components:
    - weight: 3
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zone", "hall.yaml"), []byte(`
- id: zone/hall
  components:
    - viewable: {short: The Hall}
`), 0o644))

	w := testWorld(t)
	l := New(w, zap.NewNop())
	require.NoError(t, l.LoadDir(context.Background(), dir))
	require.NoError(t, l.Finalize())
	require.Equal(t, 3, l.Files())
	require.Equal(t, 3, l.Records())
	require.Equal(t, 3, w.Len())

	kg, err := w.Get("sword", "weight")
	require.NoError(t, err)
	require.Equal(t, 3.0, kg.Get(0))
}

func TestShippedWorldLoads(t *testing.T) {
	engine, err := scripting.NewEngine("../../scripts", zap.NewNop())
	require.NoError(t, err)
	defer engine.Close()

	reg, n, err := data.NewRegistry("../../data/schema", engine)
	require.NoError(t, err)
	require.Positive(t, n)

	w := ecs.NewWorld(reg)
	l := New(w, zap.NewNop())
	require.NoError(t, l.LoadDir(context.Background(), "../../data/world"))
	require.NoError(t, l.Finalize())
	require.True(t, w.Exists("midgaard/armory"))

	spawns, err := w.GetAll("midgaard/armory", "spawn")
	require.NoError(t, err)
	require.Len(t, spawns, 1)

	sword, err := w.Get("midgaard/long-sword", "weapon")
	require.NoError(t, err)
	require.Equal(t, 10, sword.Get(0))
	require.Equal(t, "slash", sword.Get(1))
}
