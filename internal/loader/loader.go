// Package loader builds the world from declarative YAML entity records.
//
// Records may reference entities defined later in the same file or in
// another file. Anything that cannot be applied yet because an id is
// missing is queued and retried by Finalize until the queue drains or a
// whole pass makes no progress.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/hearthmud/server/internal/core/ecs"
	"github.com/hearthmud/server/internal/data"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Unresolved is a task still blocked when Finalize gave up.
type Unresolved struct {
	Loc    Location
	Action string
	Err    error
}

// LoadError lists every record that could not be resolved.
type LoadError struct {
	Unresolved []Unresolved
}

func (e *LoadError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d unresolved entity records", len(e.Unresolved))
	for _, u := range e.Unresolved {
		fmt.Fprintf(&b, "\n  %s: %s: %v", u.Loc, u.Action, u.Err)
	}
	return b.String()
}

func (e *LoadError) Unwrap() []error {
	out := make([]error, len(e.Unresolved))
	for i, u := range e.Unresolved {
		out[i] = u.Err
	}
	return out
}

// task is one deferred unit of work. run may hand back follow-up tasks that
// only make sense once it has succeeded.
type task struct {
	loc    Location
	action string
	run    func() ([]*task, error)
	err    error
	// set for update records; later updates to a target wait behind a
	// deferred one so they still apply in source order
	target ecs.ID
}

// Loader applies records to a World.
type Loader struct {
	world *ecs.World
	log   *zap.Logger

	queue   []*task
	waiting map[ecs.ID]bool
	files   int
	records int
}

func New(world *ecs.World, log *zap.Logger) *Loader {
	return &Loader{world: world, log: log, waiting: make(map[ecs.ID]bool)}
}

// Files returns how many files have been loaded.
func (l *Loader) Files() int { return l.files }

// Records returns how many records have been read.
func (l *Loader) Records() int { return l.records }

// Deferred returns how many tasks are waiting on a missing id.
func (l *Loader) Deferred() int { return len(l.queue) }

// LoadDir parses every YAML file under dir in parallel and applies the
// records in path order. A missing dir loads nothing.
func (l *Loader) LoadDir(ctx context.Context, dir string) error {
	paths, err := data.YAMLFiles(dir)
	if err != nil {
		return err
	}
	parsed := make([][]Record, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs, err := parseFile(path)
			if err != nil {
				return err
			}
			parsed[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, recs := range parsed {
		if err := l.Apply(recs); err != nil {
			return err
		}
		l.files++
		l.log.Debug("loaded entity file", zap.String("path", paths[i]), zap.Int("records", len(recs)))
	}
	return nil
}

// LoadFile parses and applies a single file.
func (l *Loader) LoadFile(path string) error {
	recs, err := parseFile(path)
	if err != nil {
		return err
	}
	if err := l.Apply(recs); err != nil {
		return err
	}
	l.files++
	return nil
}

func parseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()
	return Parse(path, f)
}

// Apply runs records in order. Records blocked on a missing id are queued
// for Finalize; any other failure is returned at once.
func (l *Loader) Apply(recs []Record) error {
	for i := range recs {
		l.records++
		t, err := l.recordTask(recs[i])
		if err != nil {
			return err
		}
		if _, err := l.runOrdered(t, l.waiting, &l.queue); err != nil {
			return err
		}
	}
	return nil
}

// runOrdered is process, except that an update whose target already has a
// deferred update is deferred behind it without running.
func (l *Loader) runOrdered(t *task, waiting map[ecs.ID]bool, deferred *[]*task) (int, error) {
	if t.target != "" && waiting[t.target] {
		if t.err == nil {
			t.err = fmt.Errorf("%w: waiting on an earlier update to %s", ecs.ErrUnknownID, t.target)
		}
		*deferred = append(*deferred, t)
		return 0, nil
	}
	n, err := l.process(t, deferred)
	if err == nil && n == 0 && t.target != "" {
		waiting[t.target] = true
	}
	return n, err
}

// Finalize retries deferred tasks until none remain or a full pass resolves
// nothing. Leftovers are reported together in a *LoadError.
func (l *Loader) Finalize() error {
	passes := 0
	for len(l.queue) > 0 {
		passes++
		var next []*task
		waiting := make(map[ecs.ID]bool)
		progress := 0
		for _, t := range l.queue {
			n, err := l.runOrdered(t, waiting, &next)
			if err != nil {
				return err
			}
			progress += n
		}
		l.queue = next
		l.waiting = waiting
		if progress == 0 {
			break
		}
	}

	if len(l.queue) > 0 {
		le := &LoadError{Unresolved: make([]Unresolved, 0, len(l.queue))}
		for _, t := range l.queue {
			le.Unresolved = append(le.Unresolved, Unresolved{Loc: t.loc, Action: t.action, Err: t.err})
		}
		l.log.Error("entity load failed", zap.Int("unresolved", len(le.Unresolved)), zap.Int("passes", passes))
		return le
	}
	l.log.Info("entities loaded",
		zap.Int("files", l.files),
		zap.Int("records", l.records),
		zap.Int("entities", l.world.Len()),
		zap.Int("passes", passes))
	return nil
}

// process runs t and any follow-ups it produces. Tasks blocked on an
// unknown id are appended to defer. It returns how many tasks completed.
func (l *Loader) process(t *task, deferred *[]*task) (int, error) {
	follow, err := t.run()
	if err != nil {
		if errors.Is(err, ecs.ErrUnknownID) {
			t.err = err
			*deferred = append(*deferred, t)
			return 0, nil
		}
		return 0, fmt.Errorf("%s: %s: %w", t.loc, t.action, err)
	}
	done := 1
	for _, f := range follow {
		n, err := l.process(f, deferred)
		if err != nil {
			return done, err
		}
		done += n
	}
	return done, nil
}

func (l *Loader) recordTask(rec Record) (*task, error) {
	reg := l.world.Registry()
	// Resolve kinds now so a typo fails at its own line rather than after
	// every deferred pass.
	for _, c := range rec.Components {
		if _, err := reg.Lookup(c.Kind); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Loc, err)
		}
	}
	for _, k := range rec.Remove {
		if _, err := reg.Lookup(k); err != nil {
			return nil, fmt.Errorf("%s: remove: %w", rec.Loc, err)
		}
	}

	if rec.Update != "" {
		return &task{
			loc:    rec.Loc,
			action: fmt.Sprintf("update %s", rec.Update),
			run:    func() ([]*task, error) { return l.update(rec) },
			target: rec.Update,
		}, nil
	}
	return &task{
		loc:    rec.Loc,
		action: fmt.Sprintf("create %s", rec.ID),
		run:    func() ([]*task, error) { return l.create(rec) },
	}, nil
}

func (l *Loader) build(rec Record) ([]*ecs.Component, error) {
	out := make([]*ecs.Component, 0, len(rec.Components))
	for _, spec := range rec.Components {
		c, err := spec.build(l.world.Registry())
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", spec.Kind, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (l *Loader) create(rec Record) ([]*task, error) {
	for _, b := range rec.Base {
		if !l.world.Exists(b) {
			return nil, fmt.Errorf("base %q: %w", b, ecs.ErrUnknownID)
		}
	}
	comps, err := l.build(rec)
	if err != nil {
		return nil, err
	}
	id, err := l.world.Create(rec.ID, rec.Base, comps...)
	if err != nil {
		return nil, err
	}
	return l.linkTasks(rec.Loc, id)
}

// update patches an existing entity: bases are merged in, listed kinds
// removed, then components added. Every referenced id is checked first so
// a blocked update changes nothing.
func (l *Loader) update(rec Record) ([]*task, error) {
	if !l.world.Exists(rec.Update) {
		return nil, fmt.Errorf("target %q: %w", rec.Update, ecs.ErrUnknownID)
	}
	for _, b := range rec.Base {
		if !l.world.Exists(b) {
			return nil, fmt.Errorf("base %q: %w", b, ecs.ErrUnknownID)
		}
	}
	comps, err := l.build(rec)
	if err != nil {
		return nil, err
	}
	for _, b := range rec.Base {
		if err := l.world.Merge(rec.Update, b); err != nil {
			return nil, err
		}
	}
	for _, k := range rec.Remove {
		if _, err := l.world.Remove(rec.Update, k); err != nil {
			return nil, err
		}
	}
	for _, c := range comps {
		if _, err := l.world.AddComponent(rec.Update, c); err != nil {
			return nil, err
		}
	}
	return l.linkTasks(rec.Loc, rec.Update)
}

// linkTasks checks every entity-typed field on id. A reference to an id
// not loaded yet is retried with the rest of the queue.
func (l *Loader) linkTasks(loc Location, id ecs.ID) ([]*task, error) {
	var out []*task
	for _, s := range l.world.Registry().Schemas() {
		var refs []int
		for i, f := range s.Fields {
			if f.Type == ecs.TypeEntity {
				refs = append(refs, i)
			}
		}
		if len(refs) == 0 {
			continue
		}
		comps, err := l.world.GetAll(id, s.Kind)
		if err != nil {
			return nil, err
		}
		for _, c := range comps {
			for _, i := range refs {
				target, _ := c.Get(i).(ecs.ID)
				if target == "" {
					continue
				}
				out = append(out, &task{
					loc:    loc,
					action: fmt.Sprintf("link %s.%s.%s", id, s.Kind, s.Fields[i].Name),
					run: func() ([]*task, error) {
						if !l.world.Exists(target) {
							return nil, fmt.Errorf("%q: %w", target, ecs.ErrUnknownID)
						}
						return nil, nil
					},
				})
			}
		}
	}
	return out, nil
}
