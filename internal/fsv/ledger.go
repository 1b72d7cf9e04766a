package fsv

import (
	"context"
	"fmt"
	"time"
)

// Ledger assigns version numbers within one partition transaction.
//
// For every changed path the caller invokes NextVersion, which closes the
// currently active record, and then OpenVersion with the returned number.
// Opened records are buffered and written in one batch by Flush.
type Ledger struct {
	store   VersionStore
	pending []*VersionRecord
	touched map[string]bool
}

// NewLedger returns a Ledger writing through store, normally a Tx.
func NewLedger(store VersionStore) *Ledger {
	return &Ledger{store: store, touched: make(map[string]bool)}
}

// NextVersion closes the active record for path at eventTime and returns the
// number its successor must carry. A path with no active record starts at 1.
func (l *Ledger) NextVersion(ctx context.Context, path string, eventTime time.Time) (int64, error) {
	if l.touched[path] {
		return 0, fmt.Errorf("path %s already versioned in this transaction", path)
	}

	active, err := l.store.ActiveVersions(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("finding active version of %s: %w", path, err)
	}

	switch len(active) {
	case 0:
		l.touched[path] = true
		return 1, nil
	case 1:
		prev := active[0]
		if err := l.store.CloseVersion(ctx, prev.ID, eventTime); err != nil {
			return 0, fmt.Errorf("closing version %d of %s: %w", prev.Version, path, err)
		}
		l.touched[path] = true
		return prev.Version + 1, nil
	default:
		return 0, &InvariantViolationError{Path: path, Active: len(active)}
	}
}

// OpenVersion buffers a new active record for e starting at eventTime.
func (l *Ledger) OpenVersion(e *Entity, op OpType, version int64, eventTime time.Time) *VersionRecord {
	rec := &VersionRecord{
		EntityID:     e.ID,
		Path:         e.Path,
		PathHash:     PathHash(e.Path),
		Description:  e.Description,
		ParentID:     e.ParentID,
		IsDir:        e.IsDir,
		CreateTS:     e.CreateTS,
		ModifyTS:     e.ModifyTS,
		IsActive:     true,
		OpType:       op,
		Version:      version,
		VersionStart: eventTime,
		VersionEnd:   OpenEnded,
	}
	l.pending = append(l.pending, rec)
	return rec
}

// Pending returns the records opened since the last Flush.
func (l *Ledger) Pending() []*VersionRecord {
	return l.pending
}

// Flush writes the buffered records.
func (l *Ledger) Flush(ctx context.Context) error {
	if len(l.pending) == 0 {
		return nil
	}
	if err := l.store.InsertVersions(ctx, l.pending); err != nil {
		return fmt.Errorf("inserting %d version records: %w", len(l.pending), err)
	}
	l.pending = nil
	return nil
}
