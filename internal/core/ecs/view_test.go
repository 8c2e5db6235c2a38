package ecs

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestViewMembership(t *testing.T) {
	w := newTestWorld(t)
	v, err := w.View(ViewSpec{Required: []string{"viewable", "closable"}})
	require.NoError(t, err)

	_, err = w.Create("both", nil, mustNew(t, w, "viewable", nil), mustNew(t, w, "closable", nil))
	require.NoError(t, err)
	_, err = w.Create("one", nil, mustNew(t, w, "viewable", nil))
	require.NoError(t, err)

	t.Run("not visible before flush", func(t *testing.T) {
		require.Zero(t, v.Len())
	})

	t.Run("visible after flush", func(t *testing.T) {
		w.Flush()
		require.Equal(t, []ID{"both"}, v.IDs())
	})

	t.Run("mid-tick mutation keeps the snapshot", func(t *testing.T) {
		_, err := w.Add("one", "closable", nil)
		require.NoError(t, err)
		_, err = w.Remove("both", "closable")
		require.NoError(t, err)
		require.Equal(t, []ID{"both"}, v.IDs())

		row, ok := v.Row("both")
		require.True(t, ok)
		require.NotNil(t, row.Get("closable"))

		w.Flush()
		require.Equal(t, []ID{"one"}, v.IDs())
	})

	t.Run("destroyed entities leave at flush", func(t *testing.T) {
		require.NoError(t, w.Destroy("one"))
		require.True(t, v.Has("one"))
		w.Flush()
		require.False(t, v.Has("one"))
		require.Zero(t, v.Len())
	})
}

func TestViewOptionalAndExcluded(t *testing.T) {
	w := newTestWorld(t)
	v, err := w.View(ViewSpec{
		Optional: []string{"closable", "size"},
		Excluded: []string{"connection"},
	})
	require.NoError(t, err)

	_, err = w.Create("none", nil, mustNew(t, w, "viewable", nil))
	require.NoError(t, err)
	_, err = w.Create("closable", nil, mustNew(t, w, "closable", nil))
	require.NoError(t, err)
	_, err = w.Create("sized", nil, mustNew(t, w, "size", nil))
	require.NoError(t, err)
	_, err = w.Create("player", nil, mustNew(t, w, "size", nil), mustNew(t, w, "connection", nil))
	require.NoError(t, err)
	w.Flush()

	require.Equal(t, []ID{"closable", "sized"}, v.IDs())

	row, ok := v.Row("sized")
	require.True(t, ok)
	require.Nil(t, row.Get("closable"))
	require.NotNil(t, row.Get("size"))
}

func TestViewListColumns(t *testing.T) {
	w := newTestWorld(t)
	v := w.MustView(ViewSpec{Required: []string{"affect"}})

	_, err := w.Create("hero", nil, mustNew(t, w, "affect", map[string]any{"name": "haste"}))
	require.NoError(t, err)
	w.Flush()

	_, err = w.Add("hero", "affect", map[string]any{"name": "slow"})
	require.NoError(t, err)

	var seen int
	v.Each(func(r Row) { seen = len(r.List("affect")) })
	require.Equal(t, 1, seen)

	w.Flush()
	v.Each(func(r Row) { seen = len(r.List("affect")) })
	require.Equal(t, 2, seen)
}

func TestViewSharedByShape(t *testing.T) {
	w := newTestWorld(t)
	a, err := w.View(ViewSpec{Required: []string{"closable", "viewable"}})
	require.NoError(t, err)
	b, err := w.View(ViewSpec{Required: []string{"viewable", "closable", "viewable"}})
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := w.View(ViewSpec{Optional: []string{"closable", "viewable"}})
	require.NoError(t, err)
	require.NotSame(t, a, c)

	_, err = w.View(ViewSpec{Required: []string{"hyperdrive"}})
	require.ErrorIs(t, err, ErrUnknownComponent)
}

func TestViewSharedOnlyByEqualShape(t *testing.T) {
	reg := NewRegistry()
	for _, kind := range []string{"a", "b", "a,b"} {
		reg.MustDefine(Schema{Kind: kind, Unique: true})
	}
	w := NewWorld(reg)

	split := w.MustView(ViewSpec{Required: []string{"a", "b"}})
	joined := w.MustView(ViewSpec{Required: []string{"a,b"}})
	require.NotSame(t, split, joined)
	require.Equal(t, []string{"a,b"}, joined.Spec().Required)

	c, err := reg.New("a", nil)
	require.NoError(t, err)
	d, err := reg.New("b", nil)
	require.NoError(t, err)
	_, err = w.Create("pair", nil, c, d)
	require.NoError(t, err)
	w.Flush()

	require.True(t, split.Has("pair"))
	require.False(t, joined.Has("pair"))
}

func TestViewPopulatesFromExistingEntities(t *testing.T) {
	w := newTestWorld(t)
	_, err := w.Create("a", nil, mustNew(t, w, "closable", nil))
	require.NoError(t, err)
	_, err = w.Create("b", nil, mustNew(t, w, "closable", nil))
	require.NoError(t, err)
	w.Flush()

	v := w.MustView(ViewSpec{Required: []string{"closable"}})
	require.Equal(t, []ID{"a", "b"}, v.IDs())
}

func TestViewFirstMatchOrder(t *testing.T) {
	w := newTestWorld(t)
	v := w.MustView(ViewSpec{Required: []string{"closable"}})

	for _, id := range []ID{"a", "b", "c", "d"} {
		_, err := w.Create(id, nil)
		require.NoError(t, err)
	}
	w.Flush()

	// engage in an order different from creation order
	for _, id := range []ID{"c", "a"} {
		_, err := w.Add(id, "closable", nil)
		require.NoError(t, err)
		w.Flush()
	}
	_, err := w.Add("d", "closable", nil)
	require.NoError(t, err)
	_, err = w.Add("b", "closable", nil)
	require.NoError(t, err)
	w.Flush()
	require.Equal(t, []ID{"c", "a", "d", "b"}, v.IDs())

	// updates keep position; leaving and rejoining goes to the back
	_, err = w.Add("c", "closable", map[string]any{"locked": true})
	require.NoError(t, err)
	_, err = w.Remove("a", "closable")
	require.NoError(t, err)
	w.Flush()
	require.Equal(t, []ID{"c", "d", "b"}, v.IDs())

	_, err = w.Add("a", "closable", nil)
	require.NoError(t, err)
	w.Flush()
	require.Equal(t, []ID{"c", "d", "b", "a"}, v.IDs())

	// an unrelated change noted earlier in the tick does not jump the queue
	for _, id := range []ID{"e", "f"} {
		_, err := w.Create(id, nil)
		require.NoError(t, err)
	}
	w.Flush()
	_, err = w.Add("e", "viewable", nil)
	require.NoError(t, err)
	_, err = w.Add("f", "closable", nil)
	require.NoError(t, err)
	_, err = w.Add("e", "closable", nil)
	require.NoError(t, err)
	w.Flush()
	require.Equal(t, []ID{"c", "d", "b", "a", "f", "e"}, v.IDs())
}

// Membership after a flush depends only on the final component state, not
// on the order of the mutations that produced it.
func TestViewMembershipIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []ID{"e0", "e1", "e2", "e3", "e4", "e5"}
	kinds := []string{"viewable", "closable"}

	for round := 0; round < 50; round++ {
		w := newTestWorld(t)
		v := w.MustView(ViewSpec{Required: []string{"viewable", "closable"}})
		for _, id := range ids {
			_, err := w.Create(id, nil)
			require.NoError(t, err)
		}
		w.Flush()

		for op := 0; op < 30; op++ {
			id := ids[rng.Intn(len(ids))]
			kind := kinds[rng.Intn(len(kinds))]
			if rng.Intn(2) == 0 {
				_, err := w.Add(id, kind, nil)
				require.NoError(t, err)
			} else {
				_, err := w.Remove(id, kind)
				require.NoError(t, err)
			}
			if rng.Intn(5) == 0 {
				w.Flush()
			}
		}
		w.Flush()

		for _, id := range ids {
			vw, err := w.Get(id, "viewable")
			require.NoError(t, err)
			cl, err := w.Get(id, "closable")
			require.NoError(t, err)
			require.Equal(t, vw != nil && cl != nil, v.Has(id), "round %d entity %s", round, id)
		}
	}
}

func TestViewCompaction(t *testing.T) {
	w := newTestWorld(t)
	v := w.MustView(ViewSpec{Required: []string{"size"}})
	for i := 0; i < 10; i++ {
		_, err := w.Create("", nil, mustNew(t, w, "size", nil))
		require.NoError(t, err)
	}
	w.Flush()
	ids := v.IDs()
	require.NoError(t, w.Destroy(ids[:8]...))
	w.Flush()

	require.Equal(t, ids[8:], v.IDs())
	require.Len(t, v.rows, 2)
}
