package database

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// registerChunk keeps multi-row inserts under SQLite's variable limit.
const registerChunk = 200

// Staging entries

var entryColumns = []string{
	"job_id", "idx", "source_path", "location_id", "sub_location_id", "asset_id",
	"state", "sha256", "duplicate_of", "reason",
}

func (s *SQLiteDatabase) RegisterJob(jobID string, entries []*model.StagingEntry) error {
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := exec(tx, psql.Delete("staging_entries").Where(sq.Eq{"job_id": jobID})); err != nil {
			return fmt.Errorf("clearing staging entries: %w", err)
		}

		for start := 0; start < len(entries); start += registerChunk {
			b := psql.Insert("staging_entries").Columns(entryColumns...)
			for _, e := range entries[start:min(start+registerChunk, len(entries))] {
				b = b.Values(jobID, e.Index, e.SourcePath, e.LocationID, e.SubLocationID, e.AssetID,
					e.State, e.SHA256, e.DuplicateOf, e.Reason)
			}
			if _, err := exec(tx, b); err != nil {
				return fmt.Errorf("registering staging entries: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteDatabase) ListStagingEntries(jobID string) ([]*model.StagingEntry, error) {
	query, args, err := psql.Select(entryColumns...).
		From("staging_entries").
		Where(sq.Eq{"job_id": jobID}).
		OrderBy("idx").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing staging entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.StagingEntry
	for rows.Next() {
		e := &model.StagingEntry{}
		err := rows.Scan(&e.JobID, &e.Index, &e.SourcePath, &e.LocationID, &e.SubLocationID, &e.AssetID,
			&e.State, &e.SHA256, &e.DuplicateOf, &e.Reason)
		if err != nil {
			return nil, fmt.Errorf("scanning staging entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func updateEntry(q querier, e *model.StagingEntry) error {
	res, err := exec(q, psql.Update("staging_entries").
		Set("asset_id", e.AssetID).
		Set("state", e.State).
		Set("sha256", e.SHA256).
		Set("duplicate_of", e.DuplicateOf).
		Set("reason", e.Reason).
		Where(sq.Eq{"job_id": e.JobID, "idx": e.Index}))
	if err != nil {
		return fmt.Errorf("updating staging entry %d: %w", e.Index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("staging entry %d of job %s not found", e.Index, e.JobID)
	}
	return nil
}

// Checkpoints

var checkpointColumns = []string{
	"operation", "job_id", "status", "total", "batch_start", "next_index", "reason", "updated_at",
}

func saveCheckpoint(q querier, cp *model.Checkpoint) error {
	_, err := exec(q, psql.Insert("checkpoints").
		Columns(checkpointColumns...).
		Values(cp.Operation, cp.JobID, cp.Status, cp.Total, cp.BatchStart, cp.NextIndex, cp.Reason, cp.UpdatedAt).
		Suffix(`ON CONFLICT (operation, job_id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			batch_start = excluded.batch_start,
			next_index = excluded.next_index,
			reason = excluded.reason,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

func scanCheckpoint(row scanner) (*model.Checkpoint, error) {
	cp := &model.Checkpoint{}
	err := row.Scan(&cp.Operation, &cp.JobID, &cp.Status, &cp.Total, &cp.BatchStart, &cp.NextIndex, &cp.Reason, &cp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *SQLiteDatabase) FindCheckpoint(operation, jobID string) (*model.Checkpoint, error) {
	query, args, err := psql.Select(checkpointColumns...).
		From("checkpoints").
		Where(sq.Eq{"operation": operation, "job_id": jobID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	cp, err := scanCheckpoint(s.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLiteDatabase) ListCheckpoints(operation string) ([]*model.Checkpoint, error) {
	query, args, err := psql.Select(checkpointColumns...).
		From("checkpoints").
		Where(sq.Eq{"operation": operation}).
		OrderBy("updated_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*model.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

func (s *SQLiteDatabase) SaveCheckpoint(cp *model.Checkpoint) error {
	return saveCheckpoint(s.db, cp)
}

func (s *SQLiteDatabase) DeleteCheckpoint(operation, jobID string) error {
	_, err := exec(s.db, psql.Delete("checkpoints").Where(sq.Eq{"operation": operation, "job_id": jobID}))
	if err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

// Undo journal

func (s *SQLiteDatabase) AppendUndoRecords(jobID string, records []*model.UndoRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM undo_journal WHERE job_id = ?", jobID).Scan(&seq); err != nil {
			return fmt.Errorf("reading undo journal: %w", err)
		}

		b := psql.Insert("undo_journal").Columns("job_id", "seq", "kind", "path")
		for _, r := range records {
			seq++
			b = b.Values(jobID, seq, r.Kind, r.Path)
		}
		if _, err := exec(tx, b); err != nil {
			return fmt.Errorf("appending undo records: %w", err)
		}
		return nil
	})
}

func (s *SQLiteDatabase) ListUndoRecords(jobID string) ([]*model.UndoRecord, error) {
	query, args, err := psql.Select("job_id", "seq", "kind", "path").
		From("undo_journal").
		Where(sq.Eq{"job_id": jobID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing undo records: %w", err)
	}
	defer rows.Close()

	var records []*model.UndoRecord
	for rows.Next() {
		r := &model.UndoRecord{}
		if err := rows.Scan(&r.JobID, &r.Seq, &r.Kind, &r.Path); err != nil {
			return nil, fmt.Errorf("scanning undo record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteDatabase) DeleteUndoRecords(jobID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := exec(s.db, psql.Delete("undo_journal").Where(sq.Eq{"job_id": jobID, "path": paths}))
	if err != nil {
		return fmt.Errorf("deleting undo records: %w", err)
	}
	return nil
}

func clearUndo(q querier, jobID string) error {
	if _, err := exec(q, psql.Delete("undo_journal").Where(sq.Eq{"job_id": jobID})); err != nil {
		return fmt.Errorf("clearing undo journal: %w", err)
	}
	return nil
}

// Batch units of work

func (s *SQLiteDatabase) AdvanceEntry(work *aupat.EntryWork) error {
	return s.inTx(func(tx *sql.Tx) error {
		if work.Asset != nil {
			if err := insertAsset(tx, work.Asset); err != nil {
				return err
			}
		}
		if err := updateEntry(tx, work.Entry); err != nil {
			return err
		}
		return saveCheckpoint(tx, work.Checkpoint)
	})
}

func (s *SQLiteDatabase) FinalizeBatch(fin *aupat.BatchFinalization) error {
	return s.inTx(func(tx *sql.Tx) error {
		if len(fin.AssetIDs) > 0 {
			if _, err := exec(tx, updateStates(fin.AssetIDs, model.StateVerified, model.StateFinalized, s.now())); err != nil {
				return fmt.Errorf("finalizing assets: %w", err)
			}
		}
		if len(fin.EntryIndexes) > 0 {
			_, err := exec(tx, psql.Delete("staging_entries").Where(sq.Eq{"job_id": fin.JobID, "idx": fin.EntryIndexes}))
			if err != nil {
				return fmt.Errorf("deleting staging entries: %w", err)
			}
		}
		if err := clearUndo(tx, fin.JobID); err != nil {
			return err
		}
		return saveCheckpoint(tx, fin.Checkpoint)
	})
}

func (s *SQLiteDatabase) FailBatch(fail *aupat.BatchFailure) error {
	return s.inTx(func(tx *sql.Tx) error {
		if len(fail.DeleteAssetIDs) > 0 {
			_, err := exec(tx, psql.Delete("assets").Where(sq.Eq{"id": fail.DeleteAssetIDs}))
			if err != nil {
				return fmt.Errorf("deleting rolled back assets: %w", err)
			}
		}
		if len(fail.FlagAssetIDs) > 0 {
			_, err := exec(tx, updateStates(fail.FlagAssetIDs, model.StateRelocated, model.StateVerificationFailed, s.now()))
			if err != nil {
				return fmt.Errorf("flagging assets: %w", err)
			}
		}
		if len(fail.ResetIndexes) > 0 {
			_, err := exec(tx, psql.Update("staging_entries").
				Set("state", model.EntryPending).
				Set("asset_id", nil).
				Set("sha256", nil).
				Set("duplicate_of", nil).
				Set("reason", "").
				Where(sq.Eq{"job_id": fail.JobID, "idx": fail.ResetIndexes}))
			if err != nil {
				return fmt.Errorf("resetting staging entries: %w", err)
			}
		}
		for idx, reason := range fail.FlagReasons {
			_, err := exec(tx, psql.Update("staging_entries").
				Set("state", model.EntryVerificationFailed).
				Set("reason", reason).
				Where(sq.Eq{"job_id": fail.JobID, "idx": idx}))
			if err != nil {
				return fmt.Errorf("flagging staging entry %d: %w", idx, err)
			}
		}
		if err := clearUndo(tx, fail.JobID); err != nil {
			return err
		}
		return saveCheckpoint(tx, fail.Checkpoint)
	})
}

func (s *SQLiteDatabase) PurgeJob(operation, jobID string) error {
	return s.inTx(func(tx *sql.Tx) error {
		deletes := []sq.DeleteBuilder{
			psql.Delete("checkpoints").Where(sq.Eq{"operation": operation, "job_id": jobID}),
			psql.Delete("staging_entries").Where(sq.Eq{"job_id": jobID}),
			psql.Delete("undo_journal").Where(sq.Eq{"job_id": jobID}),
			psql.Delete("assets").Where(sq.And{
				sq.Eq{"job_id": jobID},
				sq.NotEq{"state": model.StateFinalized},
			}),
		}
		for _, d := range deletes {
			if _, err := exec(tx, d); err != nil {
				return fmt.Errorf("purging job %s: %w", jobID, err)
			}
		}
		return nil
	})
}
