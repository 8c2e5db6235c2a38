package data

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/hearthmud/server/internal/core/ecs"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// FieldDef is one field of a component kind declared in a schema file.
type FieldDef struct {
	Name    string    `yaml:"name"`
	Type    string    `yaml:"type"`
	Default any       `yaml:"default"`
	OneOf   []any     `yaml:"one_of"`
	Range   []float64 `yaml:"range"` // [min, max]
	Lua     string    `yaml:"lua"`   // boolean expression over `value`
	Freeze  bool      `yaml:"freeze"`
	Clone   bool      `yaml:"clone"`
}

// KindDef is one component kind declared in a schema file.
type KindDef struct {
	Kind    string     `yaml:"kind"`
	Unique  bool       `yaml:"unique"`
	Persist bool       `yaml:"persist"`
	Fields  []FieldDef `yaml:"fields"`
}

type schemaFile struct {
	Components []KindDef `yaml:"components"`
}

// RuleCompiler compiles scripted validity expressions. *scripting.Engine
// implements it.
type RuleCompiler interface {
	CompileRule(expr string) (ecs.Rule, error)
}

// ParseSchemaFile reads kind definitions from YAML. Unknown keys are errors.
func ParseSchemaFile(name string, r io.Reader) ([]KindDef, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f schemaFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return f.Components, nil
}

// Schema converts a definition into an ecs.Schema. rules may be nil when no
// field uses a Lua rule.
func (d KindDef) Schema(rules RuleCompiler) (ecs.Schema, error) {
	s := ecs.Schema{
		Kind:    d.Kind,
		Unique:  d.Unique,
		Persist: d.Persist,
		Fields:  make([]ecs.Field, 0, len(d.Fields)),
	}
	for _, fd := range d.Fields {
		f, err := fd.field(rules)
		if err != nil {
			return ecs.Schema{}, fmt.Errorf("%s.%s: %w", d.Kind, fd.Name, err)
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func (fd FieldDef) field(rules RuleCompiler) (ecs.Field, error) {
	typ, err := ecs.ParseFieldType(fd.Type)
	if err != nil {
		return ecs.Field{}, err
	}
	f := ecs.Field{
		Name:    fd.Name,
		Type:    typ,
		Default: fd.Default,
		Freeze:  fd.Freeze,
		Clone:   fd.Clone,
	}

	set := 0
	if len(fd.OneOf) > 0 {
		set++
		members := make([]any, len(fd.OneOf))
		for i, m := range fd.OneOf {
			members[i] = widen(typ, m)
		}
		f.Valid = ecs.OneOf(members...)
	}
	if fd.Range != nil {
		set++
		if len(fd.Range) != 2 || fd.Range[0] > fd.Range[1] {
			return ecs.Field{}, fmt.Errorf("range must be [min, max]")
		}
		f.Valid = ecs.Range(fd.Range[0], fd.Range[1])
	}
	if fd.Lua != "" {
		set++
		if rules == nil {
			return ecs.Field{}, fmt.Errorf("lua rule %q but scripting is disabled", fd.Lua)
		}
		rule, err := rules.CompileRule(fd.Lua)
		if err != nil {
			return ecs.Field{}, err
		}
		f.Valid = rule
	}
	if set > 1 {
		return ecs.Field{}, fmt.Errorf("only one of one_of, range, lua may be given")
	}
	f.Default = widen(typ, f.Default)
	return f, nil
}

// widen makes YAML integers comparable with float fields.
func widen(t ecs.FieldType, v any) any {
	if n, ok := v.(int); ok && t == ecs.TypeFloat {
		return float64(n)
	}
	return v
}

// LoadSchemaDir defines every kind declared in the *.yaml/*.yml files of
// dir, in file name order. All definition errors are reported together.
func LoadSchemaDir(dir string, reg *ecs.Registry, rules RuleCompiler) (int, error) {
	paths, err := YAMLFiles(dir)
	if err != nil {
		return 0, err
	}
	var errs error
	count := 0
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		n, err := DefineAll(path, bytes.NewReader(raw), reg, rules)
		count += n
		errs = multierr.Append(errs, err)
	}
	return count, errs
}

// DefineAll parses one schema file and defines its kinds in reg.
func DefineAll(name string, r io.Reader, reg *ecs.Registry, rules RuleCompiler) (int, error) {
	defs, err := ParseSchemaFile(name, r)
	if err != nil {
		return 0, err
	}
	var errs error
	count := 0
	for _, d := range defs {
		s, err := d.Schema(rules)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if _, err := reg.Define(s); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		count++
	}
	return count, errs
}

// YAMLFiles lists the YAML files under dir, recursively, sorted by path.
// A missing dir yields no files.
func YAMLFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}
