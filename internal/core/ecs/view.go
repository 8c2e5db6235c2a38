package ecs

import (
	"cmp"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ViewSpec is the shape of a View: every Required kind, at least one
// Optional kind when any are listed, and no Excluded kind.
type ViewSpec struct {
	Required []string
	Optional []string
	Excluded []string
}

func (s ViewSpec) normalize() ViewSpec {
	norm := func(kinds []string) []string {
		out := slices.Clone(kinds)
		slices.Sort(out)
		return slices.Compact(out)
	}
	return ViewSpec{
		Required: norm(s.Required),
		Optional: norm(s.Optional),
		Excluded: norm(s.Excluded),
	}
}

func (s ViewSpec) key() uint64 {
	var b strings.Builder
	for _, part := range [][]string{s.Required, s.Optional, s.Excluded} {
		b.WriteString(strings.Join(part, ","))
		b.WriteByte('|')
	}
	return xxhash.Sum64String(b.String())
}

func (s ViewSpec) equal(o ViewSpec) bool {
	return slices.Equal(s.Required, o.Required) &&
		slices.Equal(s.Optional, o.Optional) &&
		slices.Equal(s.Excluded, o.Excluded)
}

// column is one cached component slot of a View row.
type column struct {
	one  *Component
	many []*Component
}

type viewRow struct {
	id    ID
	cols  []column
	alive bool
}

// Row is a View entry: the entity id and the components it held for the
// View's Required and Optional kinds as of the last Flush.
type Row struct {
	ID   ID
	view *View
	cols []column
}

// Get returns the unique instance cached for kind, or nil. For a list kind
// it returns the first instance.
func (r Row) Get(kind string) *Component {
	i, ok := r.view.columns[kind]
	if !ok {
		return nil
	}
	c := r.cols[i]
	if c.one != nil {
		return c.one
	}
	if len(c.many) > 0 {
		return c.many[0]
	}
	return nil
}

// List returns every instance cached for kind.
func (r Row) List(kind string) []*Component {
	i, ok := r.view.columns[kind]
	if !ok {
		return nil
	}
	c := r.cols[i]
	if c.one != nil {
		return []*Component{c.one}
	}
	return c.many
}

// View is a standing query kept in sync with the World by Flush. Rows are
// kept in the order entities first matched; an entity that stops matching
// and matches again later goes to the back.
type View struct {
	spec ViewSpec

	required []int
	optional []int
	excluded []int
	// Every slot whose presence can change membership.
	watch []int
	// Required then Optional slots, one column each.
	colSlots []int
	columns  map[string]int

	rows  []*viewRow
	index map[ID]*viewRow
	dead  int
}

func newView(reg *Registry, spec ViewSpec) (*View, error) {
	v := &View{
		spec:    spec,
		columns: make(map[string]int),
		index:   make(map[ID]*viewRow),
	}
	resolve := func(kinds []string) ([]int, error) {
		out := make([]int, 0, len(kinds))
		for _, k := range kinds {
			s, err := reg.Lookup(k)
			if err != nil {
				return nil, err
			}
			out = append(out, s.slot)
		}
		return out, nil
	}
	var err error
	if v.required, err = resolve(spec.Required); err != nil {
		return nil, err
	}
	if v.optional, err = resolve(spec.Optional); err != nil {
		return nil, err
	}
	if v.excluded, err = resolve(spec.Excluded); err != nil {
		return nil, err
	}
	v.watch = slices.Concat(v.required, v.optional, v.excluded)
	kinds := append(slices.Clone(spec.Required), spec.Optional...)
	slots := append(slices.Clone(v.required), v.optional...)
	for i, k := range kinds {
		if _, dup := v.columns[k]; dup {
			continue
		}
		v.columns[k] = len(v.colSlots)
		v.colSlots = append(v.colSlots, slots[i])
	}
	return v, nil
}

// Spec returns the normalized shape.
func (v *View) Spec() ViewSpec { return v.spec }

// Len returns the number of member entities.
func (v *View) Len() int { return len(v.index) }

// Has reports whether id is a member.
func (v *View) Has(id ID) bool {
	_, ok := v.index[id]
	return ok
}

// Row returns the cached row for id.
func (v *View) Row(id ID) (Row, bool) {
	r, ok := v.index[id]
	if !ok {
		return Row{}, false
	}
	return Row{ID: r.id, view: v, cols: r.cols}, true
}

// Each calls fn for every member in first-match order.
func (v *View) Each(fn func(Row)) {
	for _, r := range v.rows {
		if r.alive {
			fn(Row{ID: r.id, view: v, cols: r.cols})
		}
	}
}

// Rows returns the members in first-match order.
func (v *View) Rows() []Row {
	out := make([]Row, 0, len(v.index))
	v.Each(func(r Row) { out = append(out, r) })
	return out
}

// IDs returns member ids in first-match order.
func (v *View) IDs() []ID {
	out := make([]ID, 0, len(v.index))
	v.Each(func(r Row) { out = append(out, r.ID) })
	return out
}

func (v *View) matches(e *entity) bool {
	if e == nil {
		return false
	}
	for _, s := range v.required {
		if !e.slots[s].present() {
			return false
		}
	}
	if len(v.optional) > 0 {
		found := false
		for _, s := range v.optional {
			if e.slots[s].present() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, s := range v.excluded {
		if e.slots[s].present() {
			return false
		}
	}
	return true
}

// evaluate recomputes membership of one entity; e is nil when the entity no
// longer exists.
func (v *View) evaluate(id ID, e *entity) {
	r, member := v.index[id]
	if !v.matches(e) {
		if member {
			r.alive = false
			r.cols = nil
			delete(v.index, id)
			v.dead++
		}
		return
	}
	cols := make([]column, len(v.colSlots))
	for i, s := range v.colSlots {
		sl := &e.slots[s]
		cols[i] = column{one: sl.one, many: slices.Clone(sl.many)}
	}
	if member {
		r.cols = cols
		return
	}
	r = &viewRow{id: id, cols: cols, alive: true}
	v.rows = append(v.rows, r)
	v.index[id] = r
}

// flush re-evaluates the noted entities. Rows that join in this flush are
// ordered by the last change to a slot this View watches, which is when the
// entity came to match.
func (v *View) flush(notes []ID, entities map[ID]*entity, touched map[ID]*touch) {
	start := len(v.rows)
	for _, id := range notes {
		v.evaluate(id, entities[id])
	}
	if joined := v.rows[start:]; len(joined) > 1 {
		slices.SortStableFunc(joined, func(a, b *viewRow) int {
			return cmp.Compare(touched[a.id].last(v.watch), touched[b.id].last(v.watch))
		})
	}
	if v.dead > 0 && v.dead*2 >= len(v.rows) {
		v.rows = slices.DeleteFunc(v.rows, func(r *viewRow) bool { return !r.alive })
		v.dead = 0
	}
}
