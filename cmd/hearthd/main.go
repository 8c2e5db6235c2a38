package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hearthmud/server/internal/config"
	"github.com/hearthmud/server/internal/core/ecs"
	"github.com/hearthmud/server/internal/core/event"
	coresys "github.com/hearthmud/server/internal/core/system"
	"github.com/hearthmud/server/internal/data"
	"github.com/hearthmud/server/internal/loader"
	"github.com/hearthmud/server/internal/persist"
	"github.com/hearthmud/server/internal/scripting"
	"github.com/hearthmud/server/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              hearthd  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         entity world server for Go        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("HEARTH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Scripting and component kinds
	printSection("Schema")
	var (
		lua    *scripting.Engine
		rules  data.RuleCompiler
		script system.IntScript
	)
	if cfg.Scripting.Enabled {
		lua, err = scripting.NewEngine(cfg.Scripting.ScriptsDir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer lua.Close()
		rules, script = lua, lua
		printOK("Lua engine ready")
	}

	reg, dataKinds, err := data.NewRegistry(cfg.World.SchemaDir, rules)
	if err != nil {
		return err
	}
	printStat("Component kinds", reg.Len())
	printStat("Declared in data", dataKinds)
	fmt.Println()

	// 4. Load the world
	printSection("World")
	world := ecs.NewWorld(reg, ecs.WithIDGenerator(ecs.UUIDGenerator(cfg.World.IDPrefix)))
	bus := event.NewBus()
	subscribeLifecycle(bus, log)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ld := loader.New(world, log)
	if err := ld.LoadDir(ctx, cfg.World.DataDir); err != nil {
		return fmt.Errorf("load world: %w", err)
	}
	if err := ld.Finalize(); err != nil {
		return fmt.Errorf("load world: %w", err)
	}
	printStat("Files", ld.Files())
	printStat("Records", ld.Records())
	printStat("Entities", world.Len())

	// 5. Optional PostgreSQL persistence
	var persistSys *system.PersistenceSystem
	if cfg.Database.Enabled {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("Migrations applied")

		repo := persist.NewEntityRepo(db)
		restored, err := system.RestoreSaved(ctx, repo, world, log)
		if err != nil {
			return err
		}
		printStat("Restored", restored)

		persistSys, err = system.NewPersistenceSystem(world, repo, log, cfg.Persist.MarkerKind, cfg.Persist.IntervalTicks)
		if err != nil {
			return err
		}
	}
	// loaded state is the baseline; lifecycle events start with the first tick
	world.Flush()
	event.Emit(bus, event.LoadFinished{Entities: world.Len(), Files: ld.Files()})
	fmt.Println()

	// 6. Create systems and register with runner
	runner := coresys.NewRunner(log)
	runner.Register(system.NewEventDispatchSystem(bus))
	affectSys, err := system.NewAffectTickSystem(world, log)
	if err != nil {
		return err
	}
	runner.Register(affectSys)
	regenSys, err := system.NewRegenSystem(world, script, log, cfg.Regen.IntervalTicks)
	if err != nil {
		return err
	}
	runner.Register(regenSys)
	if persistSys != nil {
		runner.Register(persistSys)
	}
	runner.Register(system.NewCleanupSystem(world, bus))

	// 7. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.World.TickRate)
	defer ticker.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("Game loop running (tick: %s)", cfg.World.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.World.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			if persistSys != nil {
				saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
				n, err := persistSys.SaveAll(saveCtx)
				saveCancel()
				if err != nil {
					log.Error("final save failed", zap.Error(err))
				} else {
					log.Info("final save complete", zap.Int("entities", n))
				}
			}
			log.Info("server stopped", zap.Uint64("ticks", runner.Ticks()))
			return nil
		}
	}
}

func subscribeLifecycle(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(e event.LoadFinished) {
		log.Info("world ready", zap.Int("entities", e.Entities), zap.Int("files", e.Files))
	})
	event.Subscribe(bus, func(e event.EntitySpawned) {
		log.Debug("entity spawned", zap.String("entity", string(e.ID)))
	})
	event.Subscribe(bus, func(e event.EntityDestroyed) {
		log.Debug("entity destroyed", zap.String("entity", string(e.ID)))
	})
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
