package system

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthmud/server/internal/core/ecs"
	coresys "github.com/hearthmud/server/internal/core/system"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RecordStore saves entity records. persist.EntityRepo implements it.
type RecordStore interface {
	SaveRecords(ctx context.Context, recs []ecs.Record) error
}

// RecordSource reads saved records back.
type RecordSource interface {
	LoadAll(ctx context.Context) ([]ecs.Record, error)
}

const saveTimeout = 10 * time.Second

// PersistenceSystem periodically snapshots every entity carrying the marker
// kind and hands the records to the store. Phase 4 (Persist).
type PersistenceSystem struct {
	world     *ecs.World
	view      *ecs.View
	store     RecordStore
	log       *zap.Logger
	tickCount int
	interval  int // auto-save every N ticks, 0 disables
}

func NewPersistenceSystem(world *ecs.World, store RecordStore, log *zap.Logger, markerKind string, intervalTicks int) (*PersistenceSystem, error) {
	view, err := world.View(ecs.ViewSpec{Required: []string{markerKind}})
	if err != nil {
		return nil, fmt.Errorf("persistence view: %w", err)
	}
	return &PersistenceSystem{
		world:    world,
		view:     view,
		store:    store,
		log:      log,
		interval: intervalTicks,
	}, nil
}

func (s *PersistenceSystem) Name() string         { return "persistence" }
func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) error {
	if s.interval <= 0 {
		return nil
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return nil
	}
	s.tickCount = 0
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	_, err := s.SaveAll(ctx)
	return err
}

// SaveAll snapshots and stores every marked entity immediately. Called on
// graceful shutdown as well as from Update.
func (s *PersistenceSystem) SaveAll(ctx context.Context) (int, error) {
	recs := make([]ecs.Record, 0, s.view.Len())
	var snapErr error
	s.view.Each(func(r ecs.Row) {
		// destroyed this tick but still in the snapshot
		if !s.world.Exists(r.ID) {
			return
		}
		rec, err := s.world.Snapshot(r.ID)
		if err != nil {
			s.log.Error("snapshot failed", zap.String("entity", string(r.ID)), zap.Error(err))
			snapErr = multierr.Append(snapErr, err)
			return
		}
		recs = append(recs, rec)
	})
	if err := s.store.SaveRecords(ctx, recs); err != nil {
		return 0, fmt.Errorf("save %d entities: %w", len(recs), err)
	}
	s.log.Debug("entities saved", zap.Int("count", len(recs)))
	return len(recs), snapErr
}

// RestoreSaved recreates every stored entity that is not already live.
// Records that fail to restore are logged and skipped.
func RestoreSaved(ctx context.Context, src RecordSource, world *ecs.World, log *zap.Logger) (int, error) {
	recs, err := src.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load saved entities: %w", err)
	}
	restored := 0
	for _, rec := range recs {
		if world.Exists(rec.ID) {
			log.Warn("saved entity shadowed by world data", zap.String("entity", string(rec.ID)))
			continue
		}
		if err := world.Restore(rec); err != nil {
			log.Error("restore failed", zap.String("entity", string(rec.ID)), zap.Error(err))
			continue
		}
		restored++
	}
	log.Info("saved entities restored", zap.Int("restored", restored), zap.Int("stored", len(recs)))
	return restored, nil
}
