package ecs

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
)

// FieldType constrains the values a field accepts.
type FieldType uint8

const (
	TypeAny FieldType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeList
	TypeMap
	TypeEntity // holds another entity's ID; resolved by lookup, never by pointer
)

var fieldTypeNames = [...]string{
	TypeAny:    "any",
	TypeString: "string",
	TypeInt:    "int",
	TypeFloat:  "float",
	TypeBool:   "bool",
	TypeList:   "list",
	TypeMap:    "map",
	TypeEntity: "entity",
}

func (t FieldType) String() string {
	if int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return fmt.Sprintf("FieldType(%d)", t)
}

// ParseFieldType maps a schema-file type name to a FieldType. The empty
// string is TypeAny.
func ParseFieldType(name string) (FieldType, error) {
	if name == "" {
		return TypeAny, nil
	}
	for i, n := range fieldTypeNames {
		if n == name {
			return FieldType(i), nil
		}
	}
	return TypeAny, fmt.Errorf("unknown field type %q", name)
}

// Rule is a field validity rule. Rules only see non-nil values.
type Rule interface {
	Check(v any) error
}

type oneOfRule struct {
	values []any
}

// OneOf accepts only values equal to one of the given members.
func OneOf(values ...any) Rule {
	norm := make([]any, len(values))
	for i, v := range values {
		norm[i] = normalizeLoose(v)
	}
	return oneOfRule{values: norm}
}

func (r oneOfRule) Check(v any) error {
	v = normalizeLoose(v)
	for _, m := range r.values {
		if reflect.DeepEqual(m, v) {
			return nil
		}
	}
	return fmt.Errorf("not one of %v", r.values)
}

type rangeRule struct {
	min, max float64
}

// Range accepts numbers in the inclusive interval [min, max].
func Range(min, max float64) Rule {
	return rangeRule{min: min, max: max}
}

func (r rangeRule) Check(v any) error {
	f, ok := toFloat(v)
	if !ok {
		return fmt.Errorf("not a number")
	}
	if f < r.min || f > r.max {
		return fmt.Errorf("outside range [%v, %v]", r.min, r.max)
	}
	return nil
}

type predicateRule struct {
	desc string
	fn   func(any) bool
}

// Predicate accepts values for which fn returns true. desc names the rule in
// error messages.
func Predicate(desc string, fn func(any) bool) Rule {
	return predicateRule{desc: desc, fn: fn}
}

func (r predicateRule) Check(v any) error {
	if !r.fn(v) {
		return fmt.Errorf("fails %s", r.desc)
	}
	return nil
}

// Field describes one component field.
type Field struct {
	Name    string
	Type    FieldType
	Default any
	Valid   Rule

	// Freeze keeps the stored value private: reads return a copy.
	Freeze bool
	// Clone deep-copies the value when the component itself is cloned
	// (prototype composition). Without it clones share list and map values.
	Clone bool
}

// Schema is the definition of one component kind. It is immutable once
// registered.
type Schema struct {
	Kind    string
	Fields  []Field
	Unique  bool
	Persist bool

	slot  int
	index map[string]int
}

// Slot is the per-kind index assigned by the Registry. Entities store this
// kind's instances at that position of their slot vector.
func (s *Schema) Slot() int { return s.slot }

// FieldIndex resolves a field name to its position.
func (s *Schema) FieldIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// MustField resolves a field name or panics. Meant for package-level field
// index variables that are checked once at startup.
func (s *Schema) MustField(name string) int {
	i, ok := s.index[name]
	if !ok {
		panic(fmt.Sprintf("ecs: %s has no field %q", s.Kind, name))
	}
	return i
}

// FieldNames returns field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i := range s.Fields {
		names[i] = s.Fields[i].Name
	}
	return names
}

// New returns an instance holding the schema defaults, none marked modified.
func (s *Schema) New() *Component {
	c := &Component{
		schema:   s,
		values:   make([]any, len(s.Fields)),
		modified: make([]bool, len(s.Fields)),
	}
	for i := range s.Fields {
		c.values[i] = copyValue(s.Fields[i].Default)
	}
	return c
}

// NewFromValues builds an instance from a full positional value list. Every
// field is set and therefore marked modified.
func (s *Schema) NewFromValues(values ...any) (*Component, error) {
	if len(values) != len(s.Fields) {
		return nil, fmt.Errorf("%s: %d values for %d fields: %w", s.Kind, len(values), len(s.Fields), ErrInvalidValue)
	}
	c := s.New()
	for i, v := range values {
		if err := c.Set(i, v); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewFromMap builds an instance from a partial field map. Unspecified fields
// keep their defaults and stay unmodified.
func (s *Schema) NewFromMap(values map[string]any) (*Component, error) {
	c := s.New()
	// Sorted so the first reported error is deterministic.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := c.SetValue(name, values[name]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// check validates and normalises a value for field i.
func (s *Schema) check(i int, v any) (any, error) {
	f := &s.Fields[i]
	nv, err := coerce(f.Type, v)
	if err != nil {
		return nil, &FieldError{Kind: s.Kind, Field: f.Name, Value: v, Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
	}
	if nv != nil && f.Valid != nil {
		if err := f.Valid.Check(nv); err != nil {
			return nil, &FieldError{Kind: s.Kind, Field: f.Name, Value: v, Err: fmt.Errorf("%w: %v", ErrInvalidValue, err)}
		}
	}
	return nv, nil
}

func coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeAny:
		return normalizeLoose(v), nil
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInt:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	case TypeFloat:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeList:
		if l, ok := toList(v); ok {
			return l, nil
		}
	case TypeMap:
		if m, ok := toMap(v); ok {
			return m, nil
		}
	case TypeEntity:
		switch id := v.(type) {
		case ID:
			return id, nil
		case string:
			return ID(id), nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case []ID:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	}
	return nil, false
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

// normalizeLoose converts the common typed containers to []any and
// map[string]any so equality and copying treat them uniformly.
func normalizeLoose(v any) any {
	if l, ok := toList(v); ok {
		return l
	}
	if m, ok := toMap(v); ok {
		return m
	}
	return v
}

// copyValue deep-copies lists and maps. Everything else is immutable.
func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	}
	return normalizeLoose(v)
}

// valuesEqual compares in the form values take after a JSON round trip:
// numbers as float64 and ids as strings, so a restored entity does not
// differ from its bases only by representation.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(canonical(a), canonical(b))
}

func canonical(v any) any {
	switch t := normalizeLoose(v).(type) {
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = canonical(t[i])
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = canonical(e)
		}
		return out
	case ID:
		return string(t)
	case bool, string:
		return t
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}
