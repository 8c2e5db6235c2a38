package ecs

import (
	"github.com/google/uuid"
)

// ID is an opaque entity handle: either caller supplied ("area:kind/name")
// or generated. Entities refer to each other only through IDs.
type ID string

// IDGenerator produces ids for entities created without one.
type IDGenerator func() ID

// UUIDGenerator returns a generator of prefix+uuid ids.
func UUIDGenerator(prefix string) IDGenerator {
	return func() ID {
		return ID(prefix + uuid.NewString())
	}
}

// slot holds one kind's data on an entity: a single instance for unique
// kinds, an ordered list otherwise.
type slot struct {
	one  *Component
	many []*Component
}

func (s *slot) present() bool {
	return s.one != nil || len(s.many) > 0
}

// entity is one row of the World: a fixed-width slot vector indexed by
// Schema.Slot.
type entity struct {
	id    ID
	seq   uint64 // creation order
	bases []ID
	slots []slot
}

func newEntity(id ID, width int) *entity {
	return &entity{
		id:    id,
		slots: make([]slot, width),
	}
}

func (e *entity) clearModified() {
	for i := range e.slots {
		s := &e.slots[i]
		if s.one != nil {
			s.one.ClearModified()
		}
		for _, c := range s.many {
			c.ClearModified()
		}
	}
}

// compose layers src into e: unique slots merge field-by-field when e
// already has data and clone otherwise; list slots get clones appended.
func (e *entity) compose(src *entity) error {
	for i := range src.slots {
		from := &src.slots[i]
		to := &e.slots[i]
		if from.one != nil {
			if to.one != nil {
				if err := to.one.MergeFrom(from.one); err != nil {
					return err
				}
			} else {
				to.one = from.one.Clone()
			}
		}
		for _, c := range from.many {
			to.many = append(to.many, c.Clone())
		}
	}
	return nil
}

// attach adds c with add semantics: merge into an existing unique instance,
// append to a list. It returns the instance now held by e.
func (e *entity) attach(c *Component) (*Component, error) {
	s := &e.slots[c.schema.slot]
	if !c.schema.Unique {
		s.many = append(s.many, c)
		return c, nil
	}
	if s.one == nil {
		s.one = c
		return c, nil
	}
	if err := s.one.MergeFrom(c); err != nil {
		return nil, err
	}
	return s.one, nil
}

// detachKind clears a slot and returns what it held.
func (e *entity) detachKind(sc *Schema) []*Component {
	s := &e.slots[sc.slot]
	var out []*Component
	if s.one != nil {
		out = append(out, s.one)
	}
	out = append(out, s.many...)
	*s = slot{}
	return out
}

// detach removes one instance by identity.
func (e *entity) detach(c *Component) bool {
	s := &e.slots[c.schema.slot]
	if s.one == c {
		s.one = nil
		return true
	}
	for i, m := range s.many {
		if m == c {
			s.many = append(s.many[:i:i], s.many[i+1:]...)
			return true
		}
	}
	return false
}
