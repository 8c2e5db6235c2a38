package ecs

import (
	"fmt"
)

// Record is the saved form of an entity: its bases plus only what differs
// from them. Restore turns it back into an entity.
type Record struct {
	ID         ID           `json:"id" yaml:"id"`
	Base       []ID         `json:"base,omitempty" yaml:"base,omitempty"`
	Components []RecordPart `json:"components,omitempty" yaml:"components,omitempty"`
	// Kinds present on the bases but absent from the entity.
	Remove []string `json:"remove,omitempty" yaml:"remove,omitempty"`
}

// RecordPart is one saved component instance.
type RecordPart struct {
	Kind   string         `json:"kind" yaml:"kind"`
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Snapshot diffs id against its composed bases. Only kinds whose schema has
// Persist are recorded. List kinds that changed at all are saved whole.
func (w *World) Snapshot(id ID) (Record, error) {
	e, err := w.lookup("snapshot", id)
	if err != nil {
		return Record{}, err
	}
	base, err := w.compose("", e.bases)
	if err != nil {
		return Record{}, entityErr("snapshot", id, err)
	}

	rec := Record{ID: id}
	if len(e.bases) > 0 {
		rec.Base = append([]ID(nil), e.bases...)
	}
	for _, s := range w.registry.schemas {
		if !s.Persist {
			continue
		}
		cur, old := &e.slots[s.slot], &base.slots[s.slot]
		if s.Unique {
			switch {
			case cur.one == nil && old.one != nil:
				rec.Remove = append(rec.Remove, s.Kind)
			case cur.one != nil && old.one == nil:
				rec.Components = append(rec.Components, RecordPart{Kind: s.Kind, Fields: cur.one.Diff(nil)})
			case cur.one != nil:
				if d := cur.one.Diff(old.one); len(d) > 0 {
					rec.Components = append(rec.Components, RecordPart{Kind: s.Kind, Fields: d})
				}
			}
			continue
		}
		if listEqual(cur.many, old.many) {
			continue
		}
		if len(old.many) > 0 {
			rec.Remove = append(rec.Remove, s.Kind)
		}
		for _, c := range cur.many {
			rec.Components = append(rec.Components, RecordPart{Kind: s.Kind, Fields: c.Diff(nil)})
		}
	}
	return rec, nil
}

// Restore recreates an entity from a Record. The entity is composed from
// the record's bases, listed kinds are removed and the saved parts applied
// with Add semantics. Nothing is registered on failure.
func (w *World) Restore(rec Record) error {
	if err := w.checkFree(rec.ID); err != nil {
		return entityErr("restore", rec.ID, err)
	}
	e, err := w.compose(rec.ID, rec.Base)
	if err != nil {
		return entityErr("restore", rec.ID, err)
	}
	for _, kind := range rec.Remove {
		s, err := w.registry.Lookup(kind)
		if err != nil {
			return entityErr("restore", rec.ID, err)
		}
		e.detachKind(s)
	}
	for _, p := range rec.Components {
		c, err := w.registry.New(p.Kind, p.Fields)
		if err != nil {
			return entityErr("restore", rec.ID, fmt.Errorf("component %s: %w", p.Kind, err))
		}
		if _, err := e.attach(c); err != nil {
			return entityErr("restore", rec.ID, err)
		}
	}
	w.register(e)
	return nil
}

func listEqual(a, b []*Component) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
