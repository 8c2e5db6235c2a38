package ecs

import (
	"fmt"
)

// Component is one instance of a component kind: a value per schema field
// plus a per-field modified flag. Instances are plain values; they do not
// know which entity holds them.
type Component struct {
	schema   *Schema
	values   []any
	modified []bool
}

func (c *Component) Schema() *Schema { return c.schema }
func (c *Component) Kind() string    { return c.schema.Kind }

// Get returns the value of field i. Frozen fields return a copy.
func (c *Component) Get(i int) any {
	if c.schema.Fields[i].Freeze {
		return copyValue(c.values[i])
	}
	return c.values[i]
}

// Value returns a field by name.
func (c *Component) Value(name string) (any, error) {
	i, ok := c.schema.index[name]
	if !ok {
		return nil, c.unknownField(name)
	}
	return c.Get(i), nil
}

// Set validates v against field i, stores a private copy and marks the field
// modified.
func (c *Component) Set(i int, v any) error {
	return c.set(i, v, true)
}

// SetValue sets a field by name.
func (c *Component) SetValue(name string, v any) error {
	i, ok := c.schema.index[name]
	if !ok {
		return c.unknownField(name)
	}
	return c.set(i, v, true)
}

func (c *Component) set(i int, v any, track bool) error {
	nv, err := c.schema.check(i, v)
	if err != nil {
		return err
	}
	c.values[i] = copyValue(nv)
	if track {
		c.modified[i] = true
	}
	return nil
}

func (c *Component) unknownField(name string) error {
	return &FieldError{Kind: c.schema.Kind, Field: name, Err: fmt.Errorf("%w: no such field", ErrInvalidValue)}
}

// Modified reports whether field i was set since the last ClearModified.
func (c *Component) Modified(i int) bool { return c.modified[i] }

// IsModified reports whether any field is modified.
func (c *Component) IsModified() bool {
	for _, m := range c.modified {
		if m {
			return true
		}
	}
	return false
}

// ModifiedFields returns the names of modified fields in declaration order.
func (c *Component) ModifiedFields() []string {
	var out []string
	for i, m := range c.modified {
		if m {
			out = append(out, c.schema.Fields[i].Name)
		}
	}
	return out
}

// ClearModified makes the current values the new baseline.
func (c *Component) ClearModified() {
	clear(c.modified)
}

// Diff returns the fields whose value differs from other. A nil other
// compares against the schema defaults.
func (c *Component) Diff(other *Component) map[string]any {
	if other != nil && other.schema != c.schema {
		other = nil
	}
	out := make(map[string]any)
	for i := range c.values {
		var ov any
		if other != nil {
			ov = other.values[i]
		} else {
			ov = c.schema.Fields[i].Default
		}
		if !valuesEqual(c.values[i], ov) {
			out[c.schema.Fields[i].Name] = copyValue(c.values[i])
		}
	}
	return out
}

// MergeFrom copies every field other marked modified through the normal
// setter, so validity rules still apply. Unmodified fields in other never
// overwrite c.
func (c *Component) MergeFrom(other *Component) error {
	if other.schema != c.schema {
		return fmt.Errorf("merge %s into %s: %w", other.schema.Kind, c.schema.Kind, ErrUnknownComponent)
	}
	for i, m := range other.modified {
		if !m {
			continue
		}
		if err := c.set(i, other.values[i], true); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy, modified flags included. Fields
// without Clone share list and map values with the original.
func (c *Component) Clone() *Component {
	out := &Component{
		schema:   c.schema,
		values:   make([]any, len(c.values)),
		modified: make([]bool, len(c.modified)),
	}
	copy(out.modified, c.modified)
	for i, v := range c.values {
		if c.schema.Fields[i].Clone {
			out.values[i] = copyValue(v)
		} else {
			out.values[i] = v
		}
	}
	return out
}

// Equal reports structural equality: same schema and same field values.
func (c *Component) Equal(other *Component) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil || c.schema != other.schema {
		return false
	}
	for i := range c.values {
		if !valuesEqual(c.values[i], other.values[i]) {
			return false
		}
	}
	return true
}

// Values returns every field as a name→value map.
func (c *Component) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	for i, v := range c.values {
		out[c.schema.Fields[i].Name] = copyValue(v)
	}
	return out
}

func (c *Component) String() string {
	return fmt.Sprintf("%s%v", c.schema.Kind, c.Values())
}

// FieldValue is a typed read of field i. It returns the zero value when the
// field is unset or holds another type.
func FieldValue[T any](c *Component, i int) T {
	v, _ := c.Get(i).(T)
	return v
}
