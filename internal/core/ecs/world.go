package ecs

import (
	"fmt"
	"slices"
)

// World is the entity store and the only writer of component data. It is
// driven from the game loop goroutine and does no locking.
//
// Mutations never touch Views directly. Every changed entity id is noted as
// pending and Views catch up in Flush, which the loop calls once between
// ticks, so a system iterating a View sees one consistent snapshot for the
// whole tick.
type World struct {
	registry *Registry
	newID    IDGenerator

	entities map[ID]*entity
	nextSeq  uint64

	// Ids destroyed since the last Flush. They cannot be recreated until
	// then, so stale references held during the tick never see a new entity.
	retired map[ID]struct{}

	pending []ID
	touched map[ID]*touch
	// Bumped on every noted change; orders View joins within one Flush.
	changeSeq uint64
	// Ids live as of the previous Flush.
	known map[ID]struct{}

	views     []*View
	viewByKey map[uint64][]*View

	destroyQueue []ID
}

// Option configures a World.
type Option func(*World)

// WithIDGenerator replaces the default uuid id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(w *World) { w.newID = gen }
}

// NewWorld creates an empty World over reg and freezes reg.
func NewWorld(reg *Registry, opts ...Option) *World {
	reg.Freeze()
	w := &World{
		registry:     reg,
		newID:        UUIDGenerator(""),
		entities:     make(map[ID]*entity, 1024),
		retired:      make(map[ID]struct{}),
		touched:      make(map[ID]*touch, 256),
		known:        make(map[ID]struct{}, 1024),
		viewByKey:    make(map[uint64][]*View),
		destroyQueue: make([]ID, 0, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *World) Registry() *Registry { return w.registry }

// Exists reports whether id names a live entity.
func (w *World) Exists(id ID) bool {
	_, ok := w.entities[id]
	return ok
}

// Len returns the number of live entities.
func (w *World) Len() int { return len(w.entities) }

// IDs returns every live entity id in creation order.
func (w *World) IDs() []ID {
	ents := w.sorted()
	out := make([]ID, len(ents))
	for i, e := range ents {
		out[i] = e.id
	}
	return out
}

// Bases returns the prototypes id was composed from.
func (w *World) Bases(id ID) ([]ID, error) {
	e, err := w.lookup("bases", id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(e.bases), nil
}

// Kinds returns the kinds present on id in slot order.
func (w *World) Kinds(id ID) ([]string, error) {
	e, err := w.lookup("kinds", id)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := range e.slots {
		if e.slots[i].present() {
			out = append(out, w.registry.schemas[i].Kind)
		}
	}
	return out, nil
}

// Create builds a new entity. Bases are composed in order, the result
// becomes the unmodified baseline, then locals are applied with Add
// semantics and stay marked modified. An empty id is generated. Nothing is
// registered unless every step succeeds.
func (w *World) Create(id ID, bases []ID, locals ...*Component) (ID, error) {
	if id == "" {
		id = w.newID()
	}
	if err := w.checkFree(id); err != nil {
		return "", entityErr("create", id, err)
	}
	e, err := w.compose(id, bases)
	if err != nil {
		return "", entityErr("create", id, err)
	}
	for _, c := range locals {
		if c == nil {
			continue
		}
		if !w.owns(c) {
			return "", entityErr("create", id, fmt.Errorf("%q: %w", c.Kind(), ErrUnknownComponent))
		}
		if _, err := e.attach(c); err != nil {
			return "", entityErr("create", id, err)
		}
	}
	w.register(e)
	return id, nil
}

// compose builds an unregistered entity from bases and clears its
// modified flags.
func (w *World) compose(id ID, bases []ID) (*entity, error) {
	e := newEntity(id, w.registry.Len())
	for _, b := range bases {
		src, ok := w.entities[b]
		if !ok {
			return nil, fmt.Errorf("base %q: %w", b, ErrUnknownID)
		}
		if err := e.compose(src); err != nil {
			return nil, fmt.Errorf("base %q: %w", b, err)
		}
	}
	e.bases = slices.Clone(bases)
	e.clearModified()
	return e, nil
}

func (w *World) checkFree(id ID) error {
	if _, ok := w.entities[id]; ok {
		return ErrDuplicateID
	}
	if _, ok := w.retired[id]; ok {
		return fmt.Errorf("%w: destroyed this tick", ErrDuplicateID)
	}
	return nil
}

func (w *World) register(e *entity) {
	w.nextSeq++
	e.seq = w.nextSeq
	w.entities[e.id] = e
	w.note(e.id)
}

// Add adds a kind to id built from values. For a unique kind already present
// the values are merged into the existing instance, so a partial update
// only overwrites the fields it names. For list kinds a new instance is
// appended.
func (w *World) Add(id ID, kind string, values map[string]any) (*Component, error) {
	e, err := w.lookup("add", id)
	if err != nil {
		return nil, err
	}
	c, err := w.registry.New(kind, values)
	if err != nil {
		return nil, entityErr("add", id, err)
	}
	return w.attach(e, c)
}

// AddComponent adds a prebuilt instance with the same semantics as Add.
func (w *World) AddComponent(id ID, c *Component) (*Component, error) {
	e, err := w.lookup("add", id)
	if err != nil {
		return nil, err
	}
	if !w.owns(c) {
		return nil, entityErr("add", id, fmt.Errorf("%q: %w", c.Kind(), ErrUnknownComponent))
	}
	return w.attach(e, c)
}

// owns reports whether c was built from this World's registry.
func (w *World) owns(c *Component) bool {
	s, err := w.registry.Lookup(c.Kind())
	return err == nil && s == c.schema
}

func (w *World) attach(e *entity, c *Component) (*Component, error) {
	got, err := e.attach(c)
	if err != nil {
		return nil, entityErr("add", e.id, err)
	}
	w.note(e.id, c.schema.slot)
	return got, nil
}

// Remove clears kind from id and returns what was removed.
func (w *World) Remove(id ID, kind string) ([]*Component, error) {
	e, err := w.lookup("remove", id)
	if err != nil {
		return nil, err
	}
	s, err := w.registry.Lookup(kind)
	if err != nil {
		return nil, entityErr("remove", id, err)
	}
	out := e.detachKind(s)
	if len(out) > 0 {
		w.note(id, s.slot)
	}
	return out, nil
}

// RemoveComponent removes one instance, matched by identity.
func (w *World) RemoveComponent(id ID, c *Component) (bool, error) {
	e, err := w.lookup("remove", id)
	if err != nil {
		return false, err
	}
	if !w.owns(c) {
		return false, entityErr("remove", id, fmt.Errorf("%q: %w", c.Kind(), ErrUnknownComponent))
	}
	if !e.detach(c) {
		return false, nil
	}
	w.note(id, c.schema.slot)
	return true, nil
}

// Get returns the instance of a unique kind, or nil when absent. Calling it
// for a list kind is ErrNotUnique.
func (w *World) Get(id ID, kind string) (*Component, error) {
	e, err := w.lookup("get", id)
	if err != nil {
		return nil, err
	}
	s, err := w.registry.Lookup(kind)
	if err != nil {
		return nil, entityErr("get", id, err)
	}
	if !s.Unique {
		return nil, entityErr("get", id, fmt.Errorf("%q: %w", kind, ErrNotUnique))
	}
	return e.slots[s.slot].one, nil
}

// GetAll returns every instance of kind on id. The slice is a copy.
func (w *World) GetAll(id ID, kind string) ([]*Component, error) {
	e, err := w.lookup("get", id)
	if err != nil {
		return nil, err
	}
	s, err := w.registry.Lookup(kind)
	if err != nil {
		return nil, entityErr("get", id, err)
	}
	sl := &e.slots[s.slot]
	if sl.one != nil {
		return []*Component{sl.one}, nil
	}
	return slices.Clone(sl.many), nil
}

// Select returns the instances of kind on id for which keep returns true.
func (w *World) Select(id ID, kind string, keep func(*Component) bool) ([]*Component, error) {
	all, err := w.GetAll(id, kind)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(c *Component) bool { return !keep(c) }), nil
}

// Merge layers src into dst with the same rule Create uses for bases and
// records src as one of dst's bases.
func (w *World) Merge(dst, src ID) error {
	d, err := w.lookup("merge", dst)
	if err != nil {
		return err
	}
	s, err := w.lookup("merge", src)
	if err != nil {
		return err
	}
	if err := d.compose(s); err != nil {
		return entityErr("merge", dst, err)
	}
	d.bases = append(d.bases, src)
	w.note(dst)
	return nil
}

// Destroy removes entities immediately. Views drop them at the next Flush.
// Either every id is destroyed or, if one is unknown, none is.
func (w *World) Destroy(ids ...ID) error {
	for _, id := range ids {
		if _, ok := w.entities[id]; !ok {
			return entityErr("destroy", id, ErrUnknownID)
		}
	}
	for _, id := range ids {
		w.destroy(id)
	}
	return nil
}

func (w *World) destroy(id ID) {
	if _, ok := w.entities[id]; !ok {
		return
	}
	delete(w.entities, id)
	w.retired[id] = struct{}{}
	w.note(id)
}

// MarkForDestruction queues an entity for end-of-tick destruction.
func (w *World) MarkForDestruction(id ID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys every queued entity still alive and returns how
// many went.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if w.Exists(id) {
			w.destroy(id)
			n++
		}
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}

// Pending returns how many entities have changes not yet seen by Views.
func (w *World) Pending() int { return len(w.pending) }

// touch records when an entity's slots last changed during a tick.
type touch struct {
	// whole entity: create, merge, destroy
	all   uint64
	slots map[int]uint64
}

// last returns the latest change among slots, or to the whole entity.
func (t *touch) last(slots []int) uint64 {
	if t == nil {
		return 0
	}
	n := t.all
	for _, s := range slots {
		n = max(n, t.slots[s])
	}
	return n
}

// note marks id pending. With no slots the whole entity counts as changed.
func (w *World) note(id ID, slots ...int) {
	w.changeSeq++
	t, ok := w.touched[id]
	if !ok {
		t = &touch{}
		w.touched[id] = t
		w.pending = append(w.pending, id)
	}
	if len(slots) == 0 {
		t.all = w.changeSeq
		return
	}
	if t.slots == nil {
		t.slots = make(map[int]uint64, len(slots))
	}
	for _, s := range slots {
		t.slots[s] = w.changeSeq
	}
}

// FlushResult lists the lifecycle changes a Flush applied.
type FlushResult struct {
	Spawned   []ID
	Destroyed []ID
}

// Flush brings every View up to date by re-evaluating exactly the entities
// noted since the previous Flush, then releases retired ids.
func (w *World) Flush() FlushResult {
	var res FlushResult
	notes, touched := w.pending, w.touched
	w.pending = nil
	w.touched = make(map[ID]*touch, len(touched))

	for _, id := range notes {
		e := w.entities[id]
		_, wasKnown := w.known[id]
		switch {
		case e != nil && !wasKnown:
			w.known[id] = struct{}{}
			res.Spawned = append(res.Spawned, id)
		case e == nil && wasKnown:
			delete(w.known, id)
			res.Destroyed = append(res.Destroyed, id)
		}
	}
	for _, v := range w.views {
		v.flush(notes, w.entities, touched)
	}
	clear(w.retired)
	return res
}

// View returns the shared index for spec, building it on first request.
// A new View is populated from the current entities immediately.
func (w *World) View(spec ViewSpec) (*View, error) {
	spec = spec.normalize()
	key := spec.key()
	for _, v := range w.viewByKey[key] {
		if v.spec.equal(spec) {
			return v, nil
		}
	}
	v, err := newView(w.registry, spec)
	if err != nil {
		return nil, err
	}
	for _, e := range w.sorted() {
		v.evaluate(e.id, e)
	}
	w.views = append(w.views, v)
	w.viewByKey[key] = append(w.viewByKey[key], v)
	return v, nil
}

// MustView is View for shapes built from registered built-in kinds.
func (w *World) MustView(spec ViewSpec) *View {
	v, err := w.View(spec)
	if err != nil {
		panic(err)
	}
	return v
}

func (w *World) lookup(op string, id ID) (*entity, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, entityErr(op, id, ErrUnknownID)
	}
	return e, nil
}

func (w *World) sorted() []*entity {
	out := make([]*entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *entity) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}
