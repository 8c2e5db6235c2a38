// worldcheck loads the schema and world data the way the server does and
// reports per-kind entity counts. With an entity id it also prints that
// entity's saved form as YAML.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hearthmud/server/internal/core/ecs"
	"github.com/hearthmud/server/internal/data"
	"github.com/hearthmud/server/internal/loader"
	"github.com/hearthmud/server/internal/scripting"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: worldcheck <schema_dir> <data_dir> [scripts_dir] [-dump <entity_id>]")
		os.Exit(1)
	}
	schemaDir, dataDir := os.Args[1], os.Args[2]
	var scriptsDir string
	var dump ecs.ID
	rest := os.Args[3:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == "-dump" && i+1 < len(rest) {
			dump = ecs.ID(rest[i+1])
			i++
			continue
		}
		scriptsDir = rest[i]
	}

	if err := check(schemaDir, dataDir, scriptsDir, dump); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func check(schemaDir, dataDir, scriptsDir string, dump ecs.ID) error {
	log := zap.NewNop()
	lua, err := scripting.NewEngine(scriptsDir, log)
	if err != nil {
		return err
	}
	defer lua.Close()

	reg, _, err := data.NewRegistry(schemaDir, lua)
	if err != nil {
		return err
	}
	world := ecs.NewWorld(reg)
	ld := loader.New(world, log)
	if err := ld.LoadDir(context.Background(), dataDir); err != nil {
		return err
	}
	if err := ld.Finalize(); err != nil {
		return err
	}
	world.Flush()

	fmt.Printf("%d files, %d records, %d entities\n", ld.Files(), ld.Records(), world.Len())
	for _, s := range reg.Schemas() {
		v, err := world.View(ecs.ViewSpec{Required: []string{s.Kind}})
		if err != nil {
			return err
		}
		if v.Len() > 0 {
			fmt.Printf("  %-20s %d\n", s.Kind, v.Len())
		}
	}

	if dump != "" {
		rec, err := world.Snapshot(dump)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", dump, err)
		}
		fmt.Printf("\n%s", out)
	}
	return nil
}
