package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"fsv-go/internal/database/migrations"
	"fsv-go/internal/fsv"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

//go:embed queries/hierarchy.sql
var hierarchyQuery string

// Store implements fsv.Store on top of database/sql.
type Store struct {
	db      *sql.DB
	queries *queries
	dialect Dialect
}

var _ fsv.Store = (*Store)(nil)

// NewStore opens a connection for dialect and wraps it.
func NewStore(dialect Dialect, dsn string) (*Store, error) {
	db, err := OpenConnection(dialect, dsn)
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db, dialect), nil
}

// NewStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewStoreFromDB(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		queries: &queries{db: db, dialect: dialect},
		dialect: dialect,
	}
}

// OpenConnection opens a connection for dialect and verifies it is reachable.
// SQLite connections are limited to one so in-memory databases are shared
// and writers never contend.
func OpenConnection(dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}
	return db, nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports which SQL dialect the store speaks.
func (s *Store) Dialect() Dialect { return s.dialect }

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	return migrations.MigrateUp(s.db, string(s.dialect))
}

// CheckMigrations returns an error unless the schema is at the latest version.
func (s *Store) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db, string(s.dialect))
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in a transaction. It commits when fn returns nil and rolls
// back on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(tx fsv.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(s.queries.withTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Hierarchy

func (s *Store) RootFolders(ctx context.Context) ([]*fsv.Entity, error) {
	rows, err := s.queries.query(ctx,
		"SELECT "+entityColumns+" FROM folders WHERE parent_id IS NULL ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("listing root folders: %w", err)
	}
	return collect(rows, scanFolder)
}

func (s *Store) CountEntities(ctx context.Context) (int64, error) {
	var n int64
	err := s.queries.queryRow(ctx,
		"SELECT (SELECT COUNT(*) FROM folders) + (SELECT COUNT(*) FROM files)").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting entities: %w", err)
	}
	return n, nil
}

func (s *Store) Hierarchy(ctx context.Context) ([]*fsv.Entity, error) {
	rows, err := s.queries.query(ctx, hierarchyQuery)
	if err != nil {
		return nil, fmt.Errorf("loading hierarchy: %w", err)
	}
	entities, err := collect(rows, scanHierarchyRow)
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy: %w", err)
	}
	return entities, nil
}

// Versions

func (s *Store) VersionsByPath(ctx context.Context, path string) ([]*fsv.VersionRecord, error) {
	rows, err := s.queries.query(ctx,
		"SELECT "+versionColumns+" FROM version_records WHERE path_hash = ? AND path = ? ORDER BY version",
		fsv.PathHash(path), path)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", path, err)
	}
	return collect(rows, scanVersion)
}

func (s *Store) VersionsAsOf(ctx context.Context, t time.Time) ([]*fsv.VersionRecord, error) {
	at := s.queries.ts(fsv.CanonicalTime(t))
	rows, err := s.queries.query(ctx,
		"SELECT "+versionColumns+" FROM version_records"+
			" WHERE version_start <= ? AND version_end > ? AND op_type <> ? ORDER BY path",
		at, at, string(fsv.OpDelete))
	if err != nil {
		return nil, fmt.Errorf("listing versions as of %s: %w", t.Format(time.RFC3339), err)
	}
	return collect(rows, scanVersion)
}

// Runs

func (s *Store) CreateRun(ctx context.Context, operation, rootPath string, startedAt time.Time) (*fsv.Run, error) {
	run := &fsv.Run{
		Operation: operation,
		RootPath:  rootPath,
		StartedAt: fsv.CanonicalTime(startedAt),
		Status:    fsv.RunRunning,
	}
	const insert = "INSERT INTO runs (operation, root_path, started_at, status) VALUES (?, ?, ?, ?)"
	args := []any{run.Operation, run.RootPath, s.queries.ts(run.StartedAt), run.Status}

	if s.dialect == Postgres {
		if err := s.queries.queryRow(ctx, insert+" RETURNING id", args...).Scan(&run.ID); err != nil {
			return nil, fmt.Errorf("creating run: %w", err)
		}
		return run, nil
	}

	res, err := s.queries.exec(ctx, insert, args...)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading run id: %w", err)
	}
	return run, nil
}

func (s *Store) FinishRun(ctx context.Context, run *fsv.Run) error {
	var finished any
	if run.FinishedAt.Valid {
		finished = s.queries.ts(run.FinishedAt.Time)
	}
	err := s.queries.execOne(ctx,
		"UPDATE runs SET finished_at = ?, status = ?, added = ?, modified = ?, deleted = ?, unchanged = ?, error = ? WHERE id = ?",
		finished, run.Status, run.Added, run.Modified, run.Deleted, run.Unchanged, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", run.ID, err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]*fsv.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.queries.query(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return collect(rows, scanRun)
}

func (s *Store) MaxRunID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.queries.queryRow(ctx, "SELECT COALESCE(MAX(id), 0) FROM runs").Scan(&id); err != nil {
		return 0, fmt.Errorf("reading latest run id: %w", err)
	}
	return id, nil
}

// BackupTo writes a consistent copy of a SQLite store to path.
func (s *Store) BackupTo(ctx context.Context, path string) error {
	if s.dialect != SQLite {
		return fmt.Errorf("backup is only supported for sqlite stores, not %s", s.dialect)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("backing up database to %s: %w", path, err)
	}
	return nil
}
