package aupat

import (
	"sync"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// UndoKind identifies a reversible filesystem mutation.
type UndoKind string

const (
	UndoLink  UndoKind = "link"
	UndoCopy  UndoKind = "copy"
	UndoMkdir UndoKind = "mkdir"
)

// UndoEntry is one reversible mutation.
type UndoEntry struct {
	Kind UndoKind
	Path string
}

// UndoLog is the append-only, ordered record of mutations made by the batch
// in flight. Safe for concurrent use.
type UndoLog struct {
	mu      sync.Mutex
	entries []UndoEntry
}

func NewUndoLog() *UndoLog { return &UndoLog{} }

func (l *UndoLog) Append(e UndoEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy in chronological order.
func (l *UndoLog) Entries() []UndoEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]UndoEntry(nil), l.entries...)
}

func (l *UndoLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log once its batch has committed or been rolled back.
func (l *UndoLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Without returns a new log minus the entries whose path is in paths.
func (l *UndoLog) Without(paths map[string]bool) *UndoLog {
	out := NewUndoLog()
	for _, e := range l.Entries() {
		if !paths[e.Path] {
			out.Append(e)
		}
	}
	return out
}

// undoLogFromRecords rebuilds the log of an interrupted batch.
func undoLogFromRecords(records []*model.UndoRecord) *UndoLog {
	l := NewUndoLog()
	for _, r := range records {
		l.Append(UndoEntry{Kind: UndoKind(r.Kind), Path: r.Path})
	}
	return l
}

func undoRecords(jobID string, entries []UndoEntry) []*model.UndoRecord {
	records := make([]*model.UndoRecord, len(entries))
	for i, e := range entries {
		records[i] = &model.UndoRecord{JobID: jobID, Kind: string(e.Kind), Path: e.Path}
	}
	return records
}
