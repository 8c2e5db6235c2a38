package ecs

import (
	"fmt"
	"strings"
)

// Registry holds every component schema. It is built once at startup and
// frozen when the first World is created from it; after that it is read-only
// and may be shared by the World, its Views and the loader.
type Registry struct {
	schemas []*Schema
	byKind  map[string]*Schema
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{
		schemas: make([]*Schema, 0, 32),
		byKind:  make(map[string]*Schema, 32),
	}
}

// Define validates and registers a schema, assigning its slot. The schema's
// defaults must satisfy their own field rules.
func (r *Registry) Define(s Schema) (*Schema, error) {
	if r.frozen {
		return nil, fmt.Errorf("define %q: %w", s.Kind, ErrRegistryFrozen)
	}
	if s.Kind == "" || strings.ContainsAny(s.Kind, " \t\n") {
		return nil, fmt.Errorf("define %q: invalid kind name", s.Kind)
	}
	if _, dup := r.byKind[s.Kind]; dup {
		return nil, fmt.Errorf("define %q: kind already defined", s.Kind)
	}

	def := &Schema{
		Kind:    s.Kind,
		Fields:  make([]Field, len(s.Fields)),
		Unique:  s.Unique,
		Persist: s.Persist,
		slot:    len(r.schemas),
		index:   make(map[string]int, len(s.Fields)),
	}
	copy(def.Fields, s.Fields)
	for i := range def.Fields {
		f := &def.Fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("define %q: field %d has no name", s.Kind, i)
		}
		if _, dup := def.index[f.Name]; dup {
			return nil, fmt.Errorf("define %q: duplicate field %q", s.Kind, f.Name)
		}
		def.index[f.Name] = i
		nv, err := def.check(i, f.Default)
		if err != nil {
			return nil, fmt.Errorf("define %q: default: %w", s.Kind, err)
		}
		f.Default = nv
	}

	r.schemas = append(r.schemas, def)
	r.byKind[def.Kind] = def
	return def, nil
}

// MustDefine is Define for built-in kinds whose definitions cannot fail.
func (r *Registry) MustDefine(s Schema) *Schema {
	def, err := r.Define(s)
	if err != nil {
		panic(err)
	}
	return def
}

// Freeze stops further definitions.
func (r *Registry) Freeze() { r.frozen = true }

func (r *Registry) Frozen() bool { return r.frozen }

// Lookup returns the schema for kind.
func (r *Registry) Lookup(kind string) (*Schema, error) {
	s, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownComponent)
	}
	return s, nil
}

// Len returns the number of registered kinds, which is also the width of
// every entity's slot vector.
func (r *Registry) Len() int { return len(r.schemas) }

// Schemas returns all schemas in slot order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// New builds an instance of kind from a partial field map.
func (r *Registry) New(kind string, values map[string]any) (*Component, error) {
	s, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return s.NewFromMap(values)
}
