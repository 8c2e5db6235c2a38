package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearthmud/server/internal/component"
	"github.com/hearthmud/server/internal/core/ecs"
	"github.com/hearthmud/server/internal/core/event"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWorld(t *testing.T) *ecs.World {
	t.Helper()
	reg := ecs.NewRegistry()
	require.NoError(t, component.Register(reg))
	return ecs.NewWorld(reg)
}

func add(t *testing.T, w *ecs.World, id ecs.ID, kind string, values map[string]any) *ecs.Component {
	t.Helper()
	c, err := w.Add(id, kind, values)
	require.NoError(t, err)
	return c
}

func create(t *testing.T, w *ecs.World, id ecs.ID) {
	t.Helper()
	_, err := w.Create(id, nil)
	require.NoError(t, err)
}

func TestCleanupPublishesLifecycle(t *testing.T) {
	w := newWorld(t)
	bus := event.NewBus()
	var spawned, destroyed []ecs.ID
	event.Subscribe(bus, func(e event.EntitySpawned) { spawned = append(spawned, e.ID) })
	event.Subscribe(bus, func(e event.EntityDestroyed) { destroyed = append(destroyed, e.ID) })

	cleanup := NewCleanupSystem(w, bus)
	dispatch := NewEventDispatchSystem(bus)

	create(t, w, "rat")
	require.NoError(t, cleanup.Update(0))
	require.Empty(t, spawned, "events wait for the next tick")
	require.NoError(t, dispatch.Update(0))
	require.Equal(t, []ecs.ID{"rat"}, spawned)

	w.MarkForDestruction("rat")
	require.True(t, w.Exists("rat"))
	require.NoError(t, cleanup.Update(0))
	require.False(t, w.Exists("rat"))
	require.NoError(t, dispatch.Update(0))
	require.Equal(t, []ecs.ID{"rat"}, destroyed)
}

type fixedScript int

func (f fixedScript) CallInt(_ string, _ int, _ ...int) int { return int(f) }

func TestRegen(t *testing.T) {
	w := newWorld(t)
	create(t, w, "hero")
	hero := add(t, w, "hero", component.Health, map[string]any{"current": 5, "max": 10, "regen": 2})
	create(t, w, "body")
	body := add(t, w, "body", component.Health, map[string]any{"current": 5, "max": 10, "regen": 2})
	add(t, w, "body", component.Corpse, nil)
	w.Flush()

	t.Run("uses the regen field without a script", func(t *testing.T) {
		s, err := NewRegenSystem(w, nil, zap.NewNop(), 2)
		require.NoError(t, err)
		require.NoError(t, s.Update(0))
		require.Equal(t, 5, hero.Get(component.HealthCurrent), "interval not reached")
		require.NoError(t, s.Update(0))
		require.Equal(t, 7, hero.Get(component.HealthCurrent))
		require.Equal(t, 5, body.Get(component.HealthCurrent), "corpses do not regen")
	})

	t.Run("script amount is capped at max", func(t *testing.T) {
		s, err := NewRegenSystem(w, fixedScript(100), zap.NewNop(), 1)
		require.NoError(t, err)
		require.NoError(t, s.Update(0))
		require.Equal(t, 10, hero.Get(component.HealthCurrent))
	})
}

func TestAffectTick(t *testing.T) {
	w := newWorld(t)
	create(t, w, "hero")
	add(t, w, "hero", component.Affect, map[string]any{"name": "haste", "duration": 2})
	add(t, w, "hero", component.Affect, map[string]any{"name": "aura"})
	w.Flush()

	s, err := NewAffectTickSystem(w, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Update(0))
	all, err := w.GetAll("hero", component.Affect)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 1, all[0].Get(component.AffectDuration))

	require.NoError(t, s.Update(0))
	all, err = w.GetAll("hero", component.Affect)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "aura", all[0].Get(component.AffectName))
}

type memStore struct {
	saved [][]ecs.Record
	recs  []ecs.Record
	err   error
}

func (m *memStore) SaveRecords(_ context.Context, recs []ecs.Record) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, recs)
	return nil
}

func (m *memStore) LoadAll(context.Context) ([]ecs.Record, error) {
	return m.recs, m.err
}

func TestPersistenceInterval(t *testing.T) {
	w := newWorld(t)
	create(t, w, "ada")
	add(t, w, "ada", component.Player, map[string]any{"account": "ada"})
	create(t, w, "rock")
	w.Flush()

	store := &memStore{}
	s, err := NewPersistenceSystem(w, store, zap.NewNop(), component.Player, 2)
	require.NoError(t, err)

	require.NoError(t, s.Update(time.Millisecond))
	require.Empty(t, store.saved)
	require.NoError(t, s.Update(time.Millisecond))
	require.Len(t, store.saved, 1)
	require.Len(t, store.saved[0], 1)
	require.Equal(t, ecs.ID("ada"), store.saved[0][0].ID)
}

func TestPersistenceSaveAll(t *testing.T) {
	w := newWorld(t)
	create(t, w, "ada")
	add(t, w, "ada", component.Player, nil)
	create(t, w, "bob")
	add(t, w, "bob", component.Player, nil)
	w.Flush()
	require.NoError(t, w.Destroy("bob"))

	store := &memStore{}
	s, err := NewPersistenceSystem(w, store, zap.NewNop(), component.Player, 0)
	require.NoError(t, err)

	require.NoError(t, s.Update(0))
	require.Empty(t, store.saved, "interval 0 only saves on demand")

	n, err := s.SaveAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	store.err = errors.New("db down")
	_, err = s.SaveAll(context.Background())
	require.ErrorContains(t, err, "db down")
}

func TestRestoreSaved(t *testing.T) {
	w := newWorld(t)
	create(t, w, "proto/player")
	add(t, w, "proto/player", component.Health, map[string]any{"max": 20})
	create(t, w, "taken")

	src := &memStore{recs: []ecs.Record{
		{ID: "ada", Base: []ecs.ID{"proto/player"}, Components: []ecs.RecordPart{
			{Kind: component.Health, Fields: map[string]any{"current": float64(12)}},
		}},
		{ID: "taken"},
		{ID: "ghost", Base: []ecs.ID{"proto/removed"}},
	}}
	n, err := RestoreSaved(context.Background(), src, w, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	h, err := w.Get("ada", component.Health)
	require.NoError(t, err)
	require.Equal(t, 12, h.Get(component.HealthCurrent))
	require.Equal(t, 20, h.Get(component.HealthMax))
	require.False(t, w.Exists("ghost"))
}
