package fsv

import (
	"context"
	"database/sql"
	"time"
)

// OpType tags the event that produced a VersionRecord.
type OpType string

const (
	OpInsert OpType = "i"
	OpModify OpType = "m"
	OpDelete OpType = "d"
)

// OpenEnded is the version_end of every active record. It is the largest
// instant all supported stores can hold at microsecond precision.
var OpenEnded = time.Date(9999, time.December, 31, 23, 59, 59, 999999000, time.UTC)

// Record is one filesystem entry as seen by a Walker.
type Record struct {
	ID       string
	Path     string
	IsDir    bool
	CreateTS time.Time
	ModifyTS time.Time
}

// Snapshot maps canonical path to the walker's record for it.
type Snapshot map[string]*Record

// Entity is a folder or file in hierarchy form. It is produced by Assemble
// for the current snapshot and by the store's hierarchy query for persisted
// state. For files ParentID is the containing folder.
type Entity struct {
	ID          string
	Path        string
	Description sql.NullString
	ParentID    sql.NullString
	ParentPath  string
	IsDir       bool
	CreateTS    time.Time
	ModifyTS    time.Time
}

// VersionRecord is one row of a path's version history.
type VersionRecord struct {
	ID           int64
	EntityID     string
	Path         string
	PathHash     string
	Description  sql.NullString
	ParentID     sql.NullString
	IsDir        bool
	CreateTS     time.Time
	ModifyTS     time.Time
	IsActive     bool
	OpType       OpType
	Version      int64
	VersionStart time.Time
	VersionEnd   time.Time
}

// Run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// Run is the persisted record of one Initialize or Reconcile invocation.
type Run struct {
	ID         int64
	Operation  string
	RootPath   string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Added      int
	Modified   int
	Deleted    int
	Unchanged  int
	Error      sql.NullString
}

// Walker enumerates a directory tree into a Snapshot.
type Walker interface {
	Walk(ctx context.Context, root string) (Snapshot, error)
}

// VersionStore is the part of a transaction the Ledger needs.
type VersionStore interface {
	// ActiveVersions returns every active record for path. An empty result is
	// not an error.
	ActiveVersions(ctx context.Context, path string) ([]*VersionRecord, error)

	// CloseVersion marks the record inactive and ends it at end.
	CloseVersion(ctx context.Context, id int64, end time.Time) error

	// InsertVersions appends records in order.
	InsertVersions(ctx context.Context, records []*VersionRecord) error
}

// Tx is the set of writes available inside one partition transaction.
type Tx interface {
	VersionStore

	// FindFoldersByPath returns every folder stored under path.
	FindFoldersByPath(ctx context.Context, path string) ([]*Entity, error)

	// IsFolder reports whether id names a row in the folders table.
	IsFolder(ctx context.Context, id string) (bool, error)

	// InsertFolders writes folders in order. Parents must precede children.
	InsertFolders(ctx context.Context, folders []*Entity) error

	// InsertFiles writes files in order.
	InsertFiles(ctx context.Context, files []*Entity) error

	// UpdateTimestamps sets create_ts/modify_ts on the row stored under
	// e.Path in the table selected by e.IsDir. It fails if no row matches.
	UpdateTimestamps(ctx context.Context, e *Entity) error

	// DeleteFiles removes file rows by id.
	DeleteFiles(ctx context.Context, ids []string) error

	// DeleteFolder removes one folder row by id.
	DeleteFolder(ctx context.Context, id string) error
}

// Store is the persistence surface the engine is built on.
// All methods should be implemented with appropriate transaction handling.
type Store interface {
	// InTx runs fn inside a single transaction. The transaction commits if fn
	// returns nil and rolls back otherwise, including on panic.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// RootFolders returns the folders with no parent.
	RootFolders(ctx context.Context) ([]*Entity, error)

	// CountEntities returns the number of folder and file rows.
	CountEntities(ctx context.Context) (int64, error)

	// Hierarchy reconstructs the persisted tree, ordered by path.
	Hierarchy(ctx context.Context) ([]*Entity, error)

	// VersionsByPath returns the history of one path, oldest first.
	VersionsByPath(ctx context.Context, path string) ([]*VersionRecord, error)

	// VersionsAsOf returns the non-tombstone records live at instant t.
	VersionsAsOf(ctx context.Context, t time.Time) ([]*VersionRecord, error)

	// CreateRun persists a new run in the running state.
	CreateRun(ctx context.Context, operation, rootPath string, startedAt time.Time) (*Run, error)

	// FinishRun stores the final status, counts and error of run.
	FinishRun(ctx context.Context, run *Run) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// MaxRunID returns the highest run id, or 0 for an empty store.
	MaxRunID(ctx context.Context) (int64, error)
}
