package loader

import (
	"errors"
	"fmt"
	"io"

	"github.com/hearthmud/server/internal/core/ecs"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Location is where a record was read from.
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Record is one declarative entity record. Exactly one of ID (create) and
// Update (patch an existing entity) is set.
type Record struct {
	Loc        Location
	ID         ecs.ID
	Update     ecs.ID
	Base       []ecs.ID
	Components []ComponentSpec
	Remove     []string
}

// ComponentSpec is a `components` entry: a bare kind name, or a one-key map
// of kind to field values or a scalar/list shorthand.
type ComponentSpec struct {
	Loc   Location
	Kind  string
	Value any
}

// ParseError is a malformed record.
type ParseError struct {
	Loc Location
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Loc, e.Msg)
}

// Parse reads every record from a YAML stream. Each document must be a
// sequence of records.
func Parse(name string, r io.Reader) ([]Record, error) {
	dec := yaml.NewDecoder(r)
	var out []Record
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		if root.Kind != yaml.SequenceNode {
			return nil, &ParseError{Loc: Location{name, root.Line}, Msg: "expected a list of entity records"}
		}
		for _, n := range root.Content {
			rec, err := parseRecord(name, n)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
}

func parseRecord(file string, n *yaml.Node) (Record, error) {
	rec := Record{Loc: Location{file, n.Line}}
	fail := func(at *yaml.Node, format string, args ...any) (Record, error) {
		return Record{}, &ParseError{Loc: Location{file, at.Line}, Msg: fmt.Sprintf(format, args...)}
	}
	if n.Kind != yaml.MappingNode {
		return fail(n, "entity record must be a map")
	}

	var hasID, hasUpdate bool
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "id":
			id, err := scalar(val)
			if err != nil {
				return fail(val, "id: %v", err)
			}
			rec.ID, hasID = ecs.ID(id), true
		case "update":
			id, err := scalar(val)
			if err != nil {
				return fail(val, "update: %v", err)
			}
			rec.Update, hasUpdate = ecs.ID(id), true
		case "base":
			bases, err := scalarList(val)
			if err != nil {
				return fail(val, "base: %v", err)
			}
			for _, b := range bases {
				rec.Base = append(rec.Base, ecs.ID(b))
			}
		case "components":
			if val.Kind != yaml.SequenceNode {
				return fail(val, "components: expected a list")
			}
			for _, cn := range val.Content {
				spec, err := parseComponent(file, cn)
				if err != nil {
					return Record{}, err
				}
				rec.Components = append(rec.Components, spec)
			}
		case "remove":
			kinds, err := scalarList(val)
			if err != nil {
				return fail(val, "remove: %v", err)
			}
			rec.Remove = kinds
		default:
			return fail(key, "unknown key %q", key.Value)
		}
	}

	switch {
	case hasID && hasUpdate:
		return fail(n, "id and update are mutually exclusive")
	case !hasID && !hasUpdate:
		return fail(n, "record needs an id or an update")
	case hasUpdate && rec.Update == "":
		return fail(n, "update: empty id")
	case hasID && len(rec.Remove) > 0:
		return fail(n, "remove is only valid on update records")
	}
	return rec, nil
}

func parseComponent(file string, n *yaml.Node) (ComponentSpec, error) {
	loc := Location{file, n.Line}
	switch n.Kind {
	case yaml.ScalarNode:
		return ComponentSpec{Loc: loc, Kind: norm.NFC.String(n.Value)}, nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return ComponentSpec{}, &ParseError{Loc: loc, Msg: "component entry must have exactly one kind"}
		}
		var v any
		if err := n.Content[1].Decode(&v); err != nil {
			return ComponentSpec{}, &ParseError{Loc: loc, Msg: err.Error()}
		}
		return ComponentSpec{Loc: loc, Kind: norm.NFC.String(n.Content[0].Value), Value: v}, nil
	}
	return ComponentSpec{}, &ParseError{Loc: loc, Msg: "component entry must be a kind or a one-key map"}
}

func scalar(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", errors.New("expected a string")
	}
	return norm.NFC.String(n.Value), nil
}

// scalarList accepts a single string or a list of strings.
func scalarList(n *yaml.Node) ([]string, error) {
	if n.Kind == yaml.ScalarNode {
		s, err := scalar(n)
		return []string{s}, err
	}
	if n.Kind != yaml.SequenceNode {
		return nil, errors.New("expected a string or a list of strings")
	}
	out := make([]string, 0, len(n.Content))
	for _, e := range n.Content {
		s, err := scalar(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// build turns a component spec into an instance.
func (c ComponentSpec) build(reg *ecs.Registry) (*ecs.Component, error) {
	s, err := reg.Lookup(c.Kind)
	if err != nil {
		return nil, err
	}
	switch v := c.Value.(type) {
	case nil:
		return s.New(), nil
	case map[string]any:
		return s.NewFromMap(v)
	}
	if len(s.Fields) == 1 {
		return s.NewFromValues(c.Value)
	}
	if l, ok := c.Value.([]any); ok {
		return s.NewFromValues(l...)
	}
	return nil, fmt.Errorf("%s: scalar shorthand needs a single-field kind: %w", c.Kind, ecs.ErrInvalidValue)
}
