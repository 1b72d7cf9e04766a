package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"fsv-go/internal/fsv"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs statements against a connection or transaction. Every query
// is written with '?' placeholders and rebound for the dialect.
type queries struct {
	db      dbtx
	dialect Dialect
}

var _ fsv.Tx = (*queries)(nil)

func (q *queries) withTx(tx *sql.Tx) *queries {
	return &queries{db: tx, dialect: q.dialect}
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) ts(t time.Time) any {
	return q.dialect.timeArg(t)
}

// execOne runs a statement that must touch exactly one row.
func (q *queries) execOne(ctx context.Context, query string, args ...any) error {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 affected row, got %d", n)
	}
	return nil
}

// insertRows writes rows with multi-row INSERT statements, splitting them so
// no statement exceeds maxBindVars.
func (q *queries) insertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	perStmt := maxBindVars / len(columns)
	prefix := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES "
	tuple := placeholders(len(columns))

	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))
		var b strings.Builder
		b.WriteString(prefix)
		args := make([]any, 0, (end-start)*len(columns))
		for i, row := range rows[start:end] {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(tuple)
			args = append(args, row...)
		}
		if _, err := q.exec(ctx, b.String(), args...); err != nil {
			return err
		}
	}
	return nil
}

// Folders and files

var entityInsertColumns = []string{"id", "path", "path_hash", "description", "parent_id", "create_ts", "modify_ts"}

var fileInsertColumns = []string{"id", "path", "path_hash", "description", "folder_id", "create_ts", "modify_ts"}

func (q *queries) entityRows(entities []*fsv.Entity) [][]any {
	rows := make([][]any, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, []any{
			e.ID, e.Path, fsv.PathHash(e.Path), e.Description, e.ParentID,
			q.ts(e.CreateTS), q.ts(e.ModifyTS),
		})
	}
	return rows
}

func (q *queries) InsertFolders(ctx context.Context, folders []*fsv.Entity) error {
	return q.insertRows(ctx, "folders", entityInsertColumns, q.entityRows(folders))
}

func (q *queries) InsertFiles(ctx context.Context, files []*fsv.Entity) error {
	for _, f := range files {
		if !f.ParentID.Valid {
			return fmt.Errorf("file %s has no folder", f.Path)
		}
	}
	return q.insertRows(ctx, "files", fileInsertColumns, q.entityRows(files))
}

func (q *queries) FindFoldersByPath(ctx context.Context, path string) ([]*fsv.Entity, error) {
	rows, err := q.query(ctx,
		"SELECT "+entityColumns+" FROM folders WHERE path_hash = ? AND path = ?",
		fsv.PathHash(path), path)
	if err != nil {
		return nil, fmt.Errorf("finding folders by path: %w", err)
	}
	return collect(rows, scanFolder)
}

func (q *queries) IsFolder(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := q.queryRow(ctx, "SELECT COUNT(*) FROM folders WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("checking folder %s: %w", id, err)
	}
	return n > 0, nil
}

func (q *queries) UpdateTimestamps(ctx context.Context, e *fsv.Entity) error {
	table := "files"
	if e.IsDir {
		table = "folders"
	}
	err := q.execOne(ctx,
		"UPDATE "+table+" SET create_ts = ?, modify_ts = ? WHERE path_hash = ? AND path = ?",
		q.ts(e.CreateTS), q.ts(e.ModifyTS), fsv.PathHash(e.Path), e.Path)
	if err != nil {
		return fmt.Errorf("updating %s row for %s: %w", table, e.Path, err)
	}
	return nil
}

func (q *queries) DeleteFiles(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += maxBindVars {
		end := min(start+maxBindVars, len(ids))
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		res, err := q.exec(ctx, "DELETE FROM files WHERE id IN "+placeholders(len(chunk)), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading affected rows: %w", err)
		}
		if n != int64(len(chunk)) {
			return fmt.Errorf("deleted %d of %d files", n, len(chunk))
		}
	}
	return nil
}

func (q *queries) DeleteFolder(ctx context.Context, id string) error {
	return q.execOne(ctx, "DELETE FROM folders WHERE id = ?", id)
}

// Version records

var versionInsertColumns = []string{
	"entity_id", "path", "path_hash", "description", "parent_id", "is_dir",
	"create_ts", "modify_ts", "is_active", "op_type", "version", "version_start", "version_end",
}

func (q *queries) ActiveVersions(ctx context.Context, path string) ([]*fsv.VersionRecord, error) {
	rows, err := q.query(ctx,
		"SELECT "+versionColumns+" FROM version_records WHERE path_hash = ? AND path = ? AND is_active = ? ORDER BY version",
		fsv.PathHash(path), path, true)
	if err != nil {
		return nil, fmt.Errorf("finding active versions: %w", err)
	}
	return collect(rows, scanVersion)
}

func (q *queries) CloseVersion(ctx context.Context, id int64, end time.Time) error {
	err := q.execOne(ctx,
		"UPDATE version_records SET is_active = ?, version_end = ? WHERE id = ? AND is_active = ?",
		false, q.ts(end), id, true)
	if err != nil {
		return fmt.Errorf("closing version record %d: %w", id, err)
	}
	return nil
}

func (q *queries) InsertVersions(ctx context.Context, records []*fsv.VersionRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		hash := r.PathHash
		if hash == "" {
			hash = fsv.PathHash(r.Path)
		}
		rows = append(rows, []any{
			r.EntityID, r.Path, hash, r.Description, r.ParentID, r.IsDir,
			q.ts(r.CreateTS), q.ts(r.ModifyTS), r.IsActive, string(r.OpType), r.Version,
			q.ts(r.VersionStart), q.ts(r.VersionEnd),
		})
	}
	return q.insertRows(ctx, "version_records", versionInsertColumns, rows)
}
