package aupat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// Import registers the request's files as a job and runs it batch by batch
// under the archive lock. Re-running an interrupted job ID continues from
// its checkpoint. The report is returned even when the job fails or is
// interrupted; the error then says why.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*JobReport, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("nothing to import")
	}
	if err := s.validateItems(req.Items); err != nil {
		return nil, err
	}

	lock, err := s.locker.Acquire(s.root)
	if err != nil {
		return nil, err
	}
	defer s.release(lock)

	jobID := req.JobID
	if jobID == "" {
		if jobID, err = s.ids.NewID(ScopeJob); err != nil {
			return nil, err
		}
	}

	cp, fresh, err := s.checkpoints.Begin(jobID, len(req.Items))
	if err != nil {
		return nil, err
	}

	if fresh {
		entries := make([]*model.StagingEntry, len(req.Items))
		for i, item := range req.Items {
			entries[i] = &model.StagingEntry{
				JobID:         jobID,
				Index:         i,
				SourcePath:    item.SourcePath,
				LocationID:    item.LocationID,
				SubLocationID: nullString(item.SubLocationID),
				State:         model.EntryPending,
			}
		}
		if err := s.db.RegisterJob(jobID, entries); err != nil {
			return nil, fmt.Errorf("registering job %s: %w", jobID, err)
		}
		if err := s.checkpoints.Start(cp); err != nil {
			return nil, err
		}
		s.logger.Info("import job registered", "job", jobID, "files", len(entries), "batch_size", s.batchSize)
	}

	report := newJobReport(jobID, cp.Total)
	if !fresh && cp.Total != len(req.Items) {
		report.warn("job %s was registered with %d files; the %d given now are ignored", jobID, cp.Total, len(req.Items))
	}
	return s.runJob(ctx, cp, report)
}

// ResumeJob continues an interrupted or failed job from its checkpoint.
// A failed job restarts at the beginning of the batch that failed.
func (s *Service) ResumeJob(ctx context.Context, jobID string) (*JobReport, error) {
	lock, err := s.locker.Acquire(s.root)
	if err != nil {
		return nil, err
	}
	defer s.release(lock)

	cp, err := s.checkpoints.Resume(jobID)
	if err != nil {
		return nil, err
	}
	return s.runJob(ctx, cp, newJobReport(jobID, cp.Total))
}

func (s *Service) validateItems(items []IntakeItem) error {
	checked := make(map[string]bool)
	for _, item := range items {
		if !s.staging.Contains(item.SourcePath) {
			return fmt.Errorf("%s is outside the staging directory %s", item.SourcePath, s.staging.Root())
		}
		key := item.LocationID + "/" + item.SubLocationID
		if checked[key] {
			continue
		}
		if _, err := s.GetLocation(item.LocationID); err != nil {
			return err
		}
		if item.SubLocationID != "" {
			if err := s.checkSubLocation(item.LocationID, item.SubLocationID); err != nil {
				return err
			}
		}
		checked[key] = true
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, cp *Checkpoint, report *JobReport) (*JobReport, error) {
	entries, err := s.db.ListStagingEntries(cp.JobID)
	if err != nil {
		return nil, fmt.Errorf("loading staging entries: %w", err)
	}
	byIndex := make(map[int]*model.StagingEntry, len(entries))
	for _, e := range entries {
		byIndex[e.Index] = e
	}

	for {
		p := cp.Progress()
		if p.BatchStart >= cp.Total {
			break
		}
		end := max(min(p.BatchStart+s.batchSize, cp.Total), p.NextIndex)

		next, err := s.runBatch(ctx, cp, end, byIndex, report)
		if err != nil {
			switch {
			case ctx.Err() != nil && errors.Is(err, ctx.Err()):
				report.Status = JobInterrupted
				s.logger.Warn("import interrupted", "job", cp.JobID, "error", err)
			case errors.Is(err, ErrJobFailed):
				report.Status = JobFailed
			default:
				report.Status = JobFailed
				s.logger.Error("import aborted", "job", cp.JobID, "error", err)
			}
			return report, err
		}
		cp = next
	}

	if err := s.checkpoints.Complete(cp.JobID); err != nil {
		return report, err
	}
	report.Status = JobCompleted
	s.logger.Info("import finished", "job", cp.JobID, "imported", report.Imported, "duplicates", report.Duplicates, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// prepared is a staging entry after hashing and classification.
type prepared struct {
	entry  *model.StagingEntry
	action Action
	asset  *model.Asset
	reason string
	held   bool
}

// runBatch processes entries [BatchStart, end) of cp and returns the
// checkpoint after the batch commits. Entries before NextIndex were
// handled by an earlier, interrupted run and are not processed again.
func (s *Service) runBatch(ctx context.Context, cp *Checkpoint, end int, byIndex map[int]*model.StagingEntry, report *JobReport) (*Checkpoint, error) {
	progress := cp.Progress()
	start := progress.BatchStart
	br := &BatchReport{Start: start, End: end}
	s.logger.Info("batch started", "job", cp.JobID, "start", start, "next_index", progress.NextIndex, "end", end)

	batch := make([]*model.StagingEntry, 0, end-start)
	for i := start; i < end; i++ {
		e, ok := byIndex[i]
		if !ok {
			return nil, fmt.Errorf("%w: job %s: staging entry %d missing", ErrCheckpointCorruption, cp.JobID, i)
		}
		batch = append(batch, e)
	}

	undo, err := s.recoverJournal(cp.JobID)
	if err != nil {
		return nil, err
	}

	var todo []*model.StagingEntry
	for _, e := range batch {
		if e.Index >= progress.NextIndex {
			todo = append(todo, e)
		}
	}

	preps, err := s.prepare(ctx, todo)
	if err != nil {
		return nil, err
	}
	plan, locations, err := s.plan(preps)
	if err != nil {
		return nil, s.failBatch(cp, batch, nil, undo, false, err.Error(), report, br)
	}

	for _, loc := range locations {
		made := NewUndoLog()
		_, ferr := s.folders.EnsureStructure(loc, made)
		if made.Len() > 0 {
			if err := s.db.AppendUndoRecords(cp.JobID, undoRecords(cp.JobID, made.Entries())); err != nil {
				return nil, fmt.Errorf("journaling created directories: %w", err)
			}
			for _, e := range made.Entries() {
				undo.Append(e)
			}
		}
		if ferr != nil {
			return nil, s.failBatch(cp, batch, nil, undo, false, ferr.Error(), report, br)
		}
	}

	journal := &jobJournal{s: s, cp: cp, held: make(map[int]bool)}
	for _, p := range preps {
		if p.held {
			journal.held[p.entry.Index] = true
		}
	}

	result, err := s.engine.RelocateBatch(ctx, plan, undo, journal)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		return nil, s.failBatch(journal.cp, batch, nil, undo, true, err.Error(), report, br)
	}
	br.Links, br.Copies = result.Links, result.Copies

	relocated, err := s.db.ListAssetsByJob(cp.JobID, model.StateRelocated)
	if err != nil {
		return nil, fmt.Errorf("listing relocated assets: %w", err)
	}
	verification, err := s.verifier.VerifyBatch(ctx, relocated)
	if err != nil {
		return nil, err
	}
	if !verification.OK() {
		reason := fmt.Sprintf("%d of %d files failed verification; first: %s",
			len(verification.Mismatches), len(relocated), verification.Mismatches[0].Reason())
		return nil, s.failBatch(journal.cp, batch, verification.Mismatches, undo, false, reason, report, br)
	}

	return s.finalize(ctx, journal.cp, batch, end, verification.Verified, undo, report, br)
}

// recoverJournal loads the undo journal left by an interrupted run of the
// current batch. Verified assets are settled, and relocations that were
// journaled but never recorded are reverted since their entries will be
// processed again.
func (s *Service) recoverJournal(jobID string) (*UndoLog, error) {
	records, err := s.db.ListUndoRecords(jobID)
	if err != nil {
		return nil, fmt.Errorf("loading undo journal: %w", err)
	}
	if len(records) == 0 {
		return NewUndoLog(), nil
	}

	undo, err := s.settleVerified(jobID, undoLogFromRecords(records))
	if err != nil {
		return nil, err
	}

	relocated, err := s.db.ListAssetsByJob(jobID, model.StateRelocated)
	if err != nil {
		return nil, fmt.Errorf("listing relocated assets: %w", err)
	}
	recorded := make(map[string]bool, len(relocated))
	for _, a := range relocated {
		recorded[s.AssetPath(a)] = true
	}

	orphans := NewUndoLog()
	var orphanPaths []string
	for _, e := range undo.Entries() {
		if e.Kind != UndoMkdir && !recorded[e.Path] {
			orphans.Append(e)
			orphanPaths = append(orphanPaths, e.Path)
		}
	}
	if orphans.Len() == 0 {
		return undo, nil
	}

	rb := s.rollback.Rollback(orphans)
	if len(rb.Failures) > 0 {
		return nil, fmt.Errorf("reverting %d unrecorded relocations: %w", len(rb.Failures), errors.Join(rb.Failures...))
	}
	if err := s.db.DeleteUndoRecords(jobID, orphanPaths); err != nil {
		return nil, fmt.Errorf("pruning undo journal: %w", err)
	}
	s.logger.Warn("reverted unrecorded relocations from interrupted run", "job", jobID, "count", len(orphanPaths))

	keep := make(map[string]bool, len(orphanPaths))
	for _, p := range orphanPaths {
		keep[p] = true
	}
	return undo.Without(keep), nil
}

// settleVerified finalizes the job's VERIFIED assets, left behind when a
// run stopped between verification and commit, and returns undo without
// their archive files so no rollback can remove them.
func (s *Service) settleVerified(jobID string, undo *UndoLog) (*UndoLog, error) {
	verified, err := s.db.ListAssetsByJob(jobID, model.StateVerified)
	if err != nil {
		return nil, fmt.Errorf("listing verified assets: %w", err)
	}
	if len(verified) == 0 {
		return undo, nil
	}

	keep := make(map[string]bool, len(verified))
	paths := make([]string, 0, len(verified))
	ids := make([]string, 0, len(verified))
	for _, a := range verified {
		p := s.AssetPath(a)
		keep[p] = true
		paths = append(paths, p)
		ids = append(ids, a.ID)
	}

	if err := s.db.DeleteUndoRecords(jobID, paths); err != nil {
		return nil, fmt.Errorf("pruning undo journal: %w", err)
	}
	if err := s.db.UpdateAssetStates(ids, model.StateVerified, model.StateFinalized); err != nil {
		return nil, fmt.Errorf("finalizing verified assets: %w", err)
	}
	s.logger.Info("finalized assets verified by an earlier run", "job", jobID, "count", len(ids))
	return undo.Without(keep), nil
}

// prepare hashes and classifies entries on a bounded worker pool. Results
// keep the order of entries.
func (s *Service) prepare(ctx context.Context, entries []*model.StagingEntry) ([]*prepared, error) {
	out := make([]*prepared, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			p, err := s.inspect(gctx, e)
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// inspect takes one entry from STAGED to CLASSIFIED. Files that cannot be
// imported become skips; only cancellation is returned as an error.
func (s *Service) inspect(ctx context.Context, e *model.StagingEntry) (*prepared, error) {
	skip := func(format string, args ...any) (*prepared, error) {
		return &prepared{entry: e, action: ActionSkip, reason: fmt.Sprintf(format, args...)}, nil
	}

	switch {
	case e.State == model.EntryVerificationFailed:
		reason := e.Reason
		if reason == "" {
			reason = "held for review after a verification failure"
		}
		return &prepared{entry: e, action: ActionSkip, reason: reason, held: true}, nil
	case isWebReference(e.SourcePath):
		return skip("web references are not imported")
	}

	ext := filepath.Ext(e.SourcePath)
	class, ok := model.ClassForExtension(ext)
	if !ok {
		return skip("unsupported file type %q", ext)
	}

	asset := &model.Asset{
		Class:         class,
		OriginalPath:  e.SourcePath,
		LocationID:    e.LocationID,
		SubLocationID: e.SubLocationID,
		State:         model.StateStaged,
		JobID:         e.JobID,
	}

	var digest Digest
	err := s.retry.Do(ctx, s.clock, s.logger, "hash "+e.SourcePath, func() error {
		var err error
		digest, err = s.hasher.HashFile(ctx, e.SourcePath)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("skipping unreadable file", "path", e.SourcePath, "error", err)
		return skip("unreadable: %v", err)
	}
	asset.SHA256 = digest.Full
	asset.ShortDigest = digest.Short
	if err := asset.Advance(model.StateHashed); err != nil {
		return nil, err
	}

	category, meta := s.classifier.Classify(ctx, e.SourcePath, class)
	asset.Category = category
	if meta != nil {
		asset.Make = nullString(meta.Make)
		asset.Model = nullString(meta.Model)
	}
	if err := asset.Advance(model.StateClassified); err != nil {
		return nil, err
	}

	return &prepared{entry: e, action: ActionRelocate, asset: asset}, nil
}

// plan deduplicates prepared entries against the catalog and each other,
// assigns identifiers and archive paths, and returns the placements and
// the locations they need scaffolded. A match against another job's
// unfinalized asset is skipped and its staged file kept.
func (s *Service) plan(preps []*prepared) ([]*Placement, []*model.Location, error) {
	plan := make([]*Placement, 0, len(preps))
	locs := make(map[string]*model.Location)
	var order []*model.Location
	seen := make(map[string]string)
	dests := make(map[string]bool)

	for _, p := range preps {
		pl := &Placement{Entry: p.entry, Action: p.action, Reason: p.reason}
		plan = append(plan, pl)
		if p.action != ActionRelocate {
			continue
		}
		a := p.asset
		pl.Asset = a

		key := string(a.Class) + ":" + a.SHA256
		if id, ok := seen[key]; ok {
			pl.Action, pl.DuplicateOf = ActionDuplicate, id
			continue
		}
		existing, err := s.db.FindAssetByDigest(a.Class, a.SHA256)
		if err != nil {
			return nil, nil, fmt.Errorf("checking for duplicate content: %w", err)
		}
		if existing != nil {
			// Only archived content, or content this job relocated and
			// verifies with the batch, can stand in for the staged file.
			if existing.State == model.StateFinalized || existing.JobID == p.entry.JobID {
				pl.Action, pl.DuplicateOf = ActionDuplicate, existing.ID
			} else {
				pl.Action, pl.Reason = ActionSkip, fmt.Sprintf("identical content pending in job %s", existing.JobID)
			}
			continue
		}

		loc, ok := locs[a.LocationID]
		if !ok {
			if loc, err = s.GetLocation(a.LocationID); err != nil {
				return nil, nil, err
			}
			locs[a.LocationID] = loc
			order = append(order, loc)
		}

		name := DeriveName(loc.ID, a.SubLocationID.String, a.ShortDigest, filepath.Ext(a.OriginalPath))
		rel := DeriveArchivePath(loc, a.Class, a.Category, name)
		dest := filepath.Join(s.root, rel)
		if dests[dest] {
			pl.Action, pl.Reason = ActionSkip, "archive name collides with another file in this batch: "+rel
			continue
		}
		exists, err := s.fsmgr.Exists(dest)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			pl.Action, pl.Reason = ActionSkip, "archive path already exists: "+rel
			continue
		}

		id, err := s.ids.NewID(ScopeAsset)
		if err != nil {
			return nil, nil, err
		}
		a.ID = id
		a.ArchivePath = rel
		a.CreatedAt = s.clock.Now()
		a.UpdatedAt = a.CreatedAt
		if err := a.Advance(model.StatePathAssigned); err != nil {
			return nil, nil, err
		}

		pl.Dest = dest
		seen[key] = id
		dests[dest] = true
	}

	return plan, order, nil
}

// jobJournal persists engine progress for one job.
type jobJournal struct {
	s    *Service
	cp   *Checkpoint
	held map[int]bool
}

var _ RelocationJournal = (*jobJournal)(nil)

func (j *jobJournal) Intend(e UndoEntry) error {
	return j.s.db.AppendUndoRecords(j.cp.JobID, undoRecords(j.cp.JobID, []UndoEntry{e}))
}

func (j *jobJournal) Advance(p *Placement) error {
	next, err := j.s.checkpoints.Advanced(j.cp, p.Entry.Index)
	if err != nil {
		return err
	}

	entry := *p.Entry
	work := &EntryWork{Entry: &entry, Checkpoint: j.s.checkpoints.Record(next)}
	switch {
	case j.held[entry.Index]:
	case p.Action == ActionRelocate:
		entry.State = model.EntryRelocated
		entry.AssetID = nullString(p.Asset.ID)
		entry.SHA256 = nullString(p.Asset.SHA256)
		work.Asset = p.Asset
	case p.Action == ActionDuplicate:
		entry.State = model.EntryDuplicate
		entry.DuplicateOf = nullString(p.DuplicateOf)
		entry.SHA256 = nullString(p.Asset.SHA256)
	default:
		entry.State = model.EntrySkipped
		entry.Reason = p.Reason
	}

	if err := j.s.db.AdvanceEntry(work); err != nil {
		return err
	}
	*p.Entry = entry
	j.cp = next
	return nil
}

// finalize commits a verified batch. Assets are marked VERIFIED before the
// staged originals of relocated and duplicate entries are deleted, so a
// run stopped in between is settled on resume; the final transaction moves
// them to FINALIZED and advances the checkpoint.
func (s *Service) finalize(ctx context.Context, cp *Checkpoint, batch []*model.StagingEntry, end int, verified []*model.Asset, undo *UndoLog, report *JobReport, br *BatchReport) (*Checkpoint, error) {
	ids := make([]string, len(verified))
	for i, a := range verified {
		ids[i] = a.ID
	}
	if err := s.db.UpdateAssetStates(ids, model.StateRelocated, model.StateVerified); err != nil {
		return nil, fmt.Errorf("marking assets verified: %w", err)
	}

	committed := s.checkpoints.Committed(cp, end)
	fin := &BatchFinalization{JobID: cp.JobID, AssetIDs: ids, Checkpoint: s.checkpoints.Record(committed)}
	var removable []*model.StagingEntry
	for _, e := range batch {
		switch e.State {
		case model.EntryVerificationFailed:
			continue
		case model.EntryRelocated, model.EntryDuplicate:
			removable = append(removable, e)
		}
		fin.EntryIndexes = append(fin.EntryIndexes, e.Index)
	}

	var dirs []string
	for _, e := range removable {
		err := s.retry.Do(ctx, s.clock, s.logger, "remove staged "+e.SourcePath, func() error {
			return s.staging.Remove(e.SourcePath)
		})
		if err != nil {
			s.logger.Warn("staged original not removed", "path", e.SourcePath, "error", err)
			report.warn("staged original %s not removed: %v", e.SourcePath, err)
			continue
		}
		dirs = append(dirs, filepath.Dir(e.SourcePath))
	}
	if err := s.staging.Prune(dirs); err != nil {
		s.logger.Warn("pruning staging directories", "error", err)
		report.warn("pruning staging directories: %v", err)
	}

	if err := s.db.FinalizeBatch(fin); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}
	undo.Clear()

	for _, e := range batch {
		report.add(entryOutcome(e), br)
	}
	report.Batches = append(report.Batches, *br)
	s.logger.Info("batch committed", "job", cp.JobID, "start", br.Start, "end", br.End,
		"imported", br.Imported, "duplicates", br.Duplicates, "skipped", br.Skipped, "links", br.Links, "copies", br.Copies)
	return committed, nil
}

// failBatch rolls the batch back, flags mismatched assets for review and
// marks the job Failed at the batch start. It returns an error wrapping
// ErrJobFailed.
func (s *Service) failBatch(cp *Checkpoint, batch []*model.StagingEntry, mismatches []Mismatch, undo *UndoLog, rolledBack bool, reason string, report *JobReport, br *BatchReport) error {
	if !rolledBack {
		rb := s.rollback.Rollback(undo)
		if len(rb.Failures) > 0 {
			s.logger.Error("rollback incomplete", "job", cp.JobID, "reverted", rb.Reverted, "failures", len(rb.Failures))
		}
	}

	flagged := make(map[string]string, len(mismatches))
	fail := &BatchFailure{JobID: cp.JobID, FlagReasons: make(map[int]string)}
	for _, m := range mismatches {
		flagged[m.Asset.ID] = m.Reason()
		fail.FlagAssetIDs = append(fail.FlagAssetIDs, m.Asset.ID)
	}

	relocated, err := s.db.ListAssetsByJob(cp.JobID, model.StateRelocated)
	if err != nil {
		return fmt.Errorf("listing relocated assets: %w", err)
	}
	for _, a := range relocated {
		if _, ok := flagged[a.ID]; !ok {
			fail.DeleteAssetIDs = append(fail.DeleteAssetIDs, a.ID)
		}
	}

	for _, e := range batch {
		if e.State == model.EntryVerificationFailed {
			continue
		}
		if r, ok := flagged[e.AssetID.String]; ok && e.AssetID.Valid {
			fail.FlagReasons[e.Index] = r
			continue
		}
		if e.State != model.EntryPending {
			fail.ResetIndexes = append(fail.ResetIndexes, e.Index)
		}
	}

	start := cp.Progress().BatchStart
	fail.Checkpoint = s.checkpoints.Record(s.checkpoints.FailedAt(cp, start, reason))
	if err := s.db.FailBatch(fail); err != nil {
		return fmt.Errorf("recording failed batch: %w", err)
	}

	for _, e := range batch {
		switch {
		case fail.FlagReasons[e.Index] != "":
			e.State, e.Reason = model.EntryVerificationFailed, fail.FlagReasons[e.Index]
		case e.State != model.EntryVerificationFailed:
			e.State, e.Reason = model.EntryPending, ""
			e.AssetID, e.DuplicateOf, e.SHA256 = nullString(""), nullString(""), nullString("")
		}
		o := Outcome{Kind: OutcomeError, Index: e.Index, SourcePath: e.SourcePath, Reason: "batch rolled back: " + reason}
		if e.State == model.EntryVerificationFailed {
			o.Reason = e.Reason
		}
		report.add(o, br)
	}
	report.Batches = append(report.Batches, *br)

	s.logger.Error("batch failed and rolled back", "job", cp.JobID, "start", br.Start, "end", br.End, "reason", reason)
	return fmt.Errorf("%w: %s: batch [%d, %d): %s", ErrJobFailed, cp.JobID, br.Start, br.End, reason)
}

func entryOutcome(e *model.StagingEntry) Outcome {
	o := Outcome{Index: e.Index, SourcePath: e.SourcePath}
	switch e.State {
	case model.EntryRelocated:
		o.Kind, o.AssetID = OutcomeImported, e.AssetID.String
	case model.EntryDuplicate:
		o.Kind, o.AssetID = OutcomeDuplicate, e.DuplicateOf.String
	case model.EntrySkipped:
		o.Kind, o.Reason = OutcomeSkipped, e.Reason
	case model.EntryVerificationFailed:
		o.Kind, o.Reason = OutcomeError, e.Reason
	default:
		o.Kind, o.Reason = OutcomeError, "entry was not processed"
	}
	return o
}
