package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hearthmud/server/internal/core/ecs"
	"github.com/jackc/pgx/v5"
)

// EntityRow is one saved entity as stored in the entities table.
type EntityRow struct {
	ID         string
	Base       []byte
	Components []byte
	Remove     []byte
}

// encodeRecord flattens a Record into JSONB columns.
func encodeRecord(rec ecs.Record) (EntityRow, error) {
	row := EntityRow{ID: string(rec.ID)}
	var err error
	if row.Base, err = marshalList(rec.Base); err != nil {
		return row, fmt.Errorf("encode %s base: %w", rec.ID, err)
	}
	if row.Components, err = marshalList(rec.Components); err != nil {
		return row, fmt.Errorf("encode %s components: %w", rec.ID, err)
	}
	if row.Remove, err = marshalList(rec.Remove); err != nil {
		return row, fmt.Errorf("encode %s remove: %w", rec.ID, err)
	}
	return row, nil
}

// marshalList writes nil slices as [] to satisfy the NOT NULL columns.
func marshalList[T any](v []T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

func decodeRecord(row EntityRow) (ecs.Record, error) {
	rec := ecs.Record{ID: ecs.ID(row.ID)}
	if err := json.Unmarshal(row.Base, &rec.Base); err != nil {
		return rec, fmt.Errorf("decode %s base: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Components, &rec.Components); err != nil {
		return rec, fmt.Errorf("decode %s components: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Remove, &rec.Remove); err != nil {
		return rec, fmt.Errorf("decode %s remove: %w", row.ID, err)
	}
	if len(rec.Base) == 0 {
		rec.Base = nil
	}
	if len(rec.Components) == 0 {
		rec.Components = nil
	}
	if len(rec.Remove) == 0 {
		rec.Remove = nil
	}
	return rec, nil
}

type EntityRepo struct {
	db *DB
}

func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// SaveRecords upserts a batch of records in one transaction.
func (r *EntityRepo) SaveRecords(ctx context.Context, recs []ecs.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range recs {
		row, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO entities (id, base, components, remove, saved_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (id) DO UPDATE SET
			   base = EXCLUDED.base, components = EXCLUDED.components,
			   remove = EXCLUDED.remove, saved_at = EXCLUDED.saved_at`,
			row.ID, row.Base, row.Components, row.Remove,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadAll returns every saved record ordered by id.
func (r *EntityRepo) LoadAll(ctx context.Context) ([]ecs.Record, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, base, components, remove FROM entities ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ecs.Record
	for rows.Next() {
		var row EntityRow
		if err := rows.Scan(&row.ID, &row.Base, &row.Components, &row.Remove); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(row)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
