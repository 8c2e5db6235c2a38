package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hearthmud/server/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM used for scripted field rules and
// tuning hooks. Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a sandboxed Lua VM and loads every .lua file in
// scriptsDir as a helper library. A missing directory is not an error.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		vm.Push(vm.NewFunction(lib.open))
		vm.Push(lua.LString(lib.name))
		vm.Call(1, 0)
	}
	// no file access from data-defined rules
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		vm.SetGlobal(name, lua.LNil)
	}
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if scriptsDir != "" {
		if err := e.loadDir(scriptsDir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source, typically to define helpers.
func (e *Engine) LoadString(src string) error {
	return e.vm.DoString(src)
}

// CompileRule turns a Lua boolean expression over `value` into a field rule,
// e.g. `value % 2 == 0` or `is_direction(value)`. The expression is
// compiled once; a runtime error counts as a rejected value.
func (e *Engine) CompileRule(expr string) (ecs.Rule, error) {
	fn, err := e.vm.LoadString("return function(value) return (" + expr + ") end")
	if err != nil {
		return nil, fmt.Errorf("compile rule %q: %w", expr, err)
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return nil, fmt.Errorf("compile rule %q: %w", expr, err)
	}
	pred, ok := e.vm.Get(-1).(*lua.LFunction)
	e.vm.Pop(1)
	if !ok {
		return nil, fmt.Errorf("compile rule %q: not a function", expr)
	}

	return ecs.Predicate("lua: "+expr, func(v any) bool {
		if err := e.vm.CallByParam(lua.P{Fn: pred, NRet: 1, Protect: true}, e.toLua(v)); err != nil {
			e.log.Warn("lua rule error", zap.String("rule", expr), zap.Error(err))
			return false
		}
		ret := e.vm.Get(-1)
		e.vm.Pop(1)
		return lua.LVAsBool(ret)
	}), nil
}

// CallInt calls a global Lua function with int args and returns its int
// result, or fallback when the function is not defined or fails.
func (e *Engine) CallInt(name string, fallback int, args ...int) int {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return fallback
	}

	lArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		lArgs[i] = lua.LNumber(a)
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lArgs...); err != nil {
		e.log.Error("lua call error", zap.String("func", name), zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	n, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua function returned non-number", zap.String("func", name))
		return fallback
	}
	return int(n)
}

// toLua converts a component field value into a Lua value.
func (e *Engine) toLua(v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case int:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	case ecs.ID:
		return lua.LString(t)
	case []any:
		tbl := e.vm.NewTable()
		for _, el := range t {
			tbl.Append(e.toLua(el))
		}
		return tbl
	case map[string]any:
		tbl := e.vm.NewTable()
		for k, el := range t {
			tbl.RawSetString(k, e.toLua(el))
		}
		return tbl
	}
	return lua.LString(fmt.Sprint(v))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
