// Package checkpoint implements the Checkpoint Store (§4.9): a
// single-writer-per-batch record keyed by batch id, plus a singleton
// "latest" pointer resolving the source's dual-keying ambiguity. Grounded
// on ProcessingOptimizer's _save_checkpoint/load_checkpoint
// (processing_optimizer.py) and on the shared key/value table idiom
// internal/ratelimit.DatabaseLimiter already uses against the same
// PostgreSQL database.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/RexRenatus/korean-flashcard-pipeline/internal/errs"
	"github.com/RexRenatus/korean-flashcard-pipeline/internal/model"
)

const latestKey = "latest_checkpoint"

func batchKey(batchID string) string { return "checkpoint_" + batchID }

// Store persists checkpoints under a single key/value table: one row per
// batch plus the "latest_checkpoint" singleton (§4.9 "Keying (reconciled)").
type Store struct {
	db *sql.DB
}

// New wraps db, whose schema is the checkpoints table.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save persists cp and updates the latest-checkpoint pointer, both within
// one transaction so a reader never observes one without the other.
func (s *Store) Save(ctx context.Context, cp model.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal checkpoint")
	}
	pointer, err := json.Marshal(model.LatestPointer{CheckpointID: cp.CheckpointID, BatchID: cp.BatchID})
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal latest pointer")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Database, err, "begin checkpoint save")
	}
	defer tx.Rollback()

	if err := upsert(ctx, tx, batchKey(cp.BatchID), payload); err != nil {
		return err
	}
	if err := upsert(ctx, tx, latestKey, pointer); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Database, err, "commit checkpoint save")
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, key string, value []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return errs.Wrap(errs.Database, err, "upsert checkpoint row")
	}
	return nil
}

// Load reads the full checkpoint record for batchID, returning (zero value,
// false) if none exists.
func (s *Store) Load(ctx context.Context, batchID string) (model.Checkpoint, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM checkpoints WHERE key = $1`, batchKey(batchID)).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.Checkpoint{}, false, nil
	}
	if err != nil {
		return model.Checkpoint{}, false, errs.Wrap(errs.Database, err, "load checkpoint")
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return model.Checkpoint{}, false, errs.Wrap(errs.Database, err, "decode checkpoint")
	}
	return cp, true, nil
}

// Latest reads the singleton pointer, returning (zero value, false) if no
// checkpoint has ever been saved.
func (s *Store) Latest(ctx context.Context) (model.LatestPointer, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM checkpoints WHERE key = $1`, latestKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return model.LatestPointer{}, false, nil
	}
	if err != nil {
		return model.LatestPointer{}, false, errs.Wrap(errs.Database, err, "load latest checkpoint pointer")
	}

	var pointer model.LatestPointer
	if err := json.Unmarshal(raw, &pointer); err != nil {
		return model.LatestPointer{}, false, errs.Wrap(errs.Database, err, "decode latest checkpoint pointer")
	}
	return pointer, true, nil
}

// Resume loads the checkpoint to resume from: batchID if given, otherwise
// whatever Latest names (§4.9 "Resume").
func (s *Store) Resume(ctx context.Context, batchID string) (model.Checkpoint, bool, error) {
	if batchID == "" {
		pointer, ok, err := s.Latest(ctx)
		if err != nil || !ok {
			return model.Checkpoint{}, false, err
		}
		batchID = pointer.BatchID
	}
	return s.Load(ctx, batchID)
}
