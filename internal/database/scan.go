package database

import (
	"database/sql"
	"fmt"
	"time"

	"fsv-go/internal/fsv"
)

var timeLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// dbTime scans a timestamp column into UTC. Drivers hand back time.Time for
// typed columns but text for SQLite expressions such as UNION results.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Time, d.Valid = v.UTC(), true
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (d *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			d.Time, d.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const entityColumns = "id, path, description, parent_id, create_ts, modify_ts"

func scanFolder(row rowScanner) (*fsv.Entity, error) {
	var e fsv.Entity
	var created, modified dbTime
	if err := row.Scan(&e.ID, &e.Path, &e.Description, &e.ParentID, &created, &modified); err != nil {
		return nil, err
	}
	e.IsDir = true
	e.CreateTS, e.ModifyTS = created.Time, modified.Time
	return &e, nil
}

func scanHierarchyRow(row rowScanner) (*fsv.Entity, error) {
	var e fsv.Entity
	var created, modified dbTime
	if err := row.Scan(&e.ID, &e.Path, &e.Description, &e.ParentID, &e.ParentPath, &e.IsDir, &created, &modified); err != nil {
		return nil, err
	}
	e.CreateTS, e.ModifyTS = created.Time, modified.Time
	return &e, nil
}

const versionColumns = "id, entity_id, path, path_hash, description, parent_id, is_dir, " +
	"create_ts, modify_ts, is_active, op_type, version, version_start, version_end"

func scanVersion(row rowScanner) (*fsv.VersionRecord, error) {
	var v fsv.VersionRecord
	var op string
	var created, modified, start, end dbTime
	err := row.Scan(&v.ID, &v.EntityID, &v.Path, &v.PathHash, &v.Description, &v.ParentID, &v.IsDir,
		&created, &modified, &v.IsActive, &op, &v.Version, &start, &end)
	if err != nil {
		return nil, err
	}
	v.OpType = fsv.OpType(op)
	v.CreateTS, v.ModifyTS = created.Time, modified.Time
	v.VersionStart, v.VersionEnd = start.Time, end.Time
	return &v, nil
}

const runColumns = "id, operation, root_path, started_at, finished_at, status, " +
	"added, modified, deleted, unchanged, error"

func scanRun(row rowScanner) (*fsv.Run, error) {
	var r fsv.Run
	var started, finished dbTime
	err := row.Scan(&r.ID, &r.Operation, &r.RootPath, &started, &finished, &r.Status,
		&r.Added, &r.Modified, &r.Deleted, &r.Unchanged, &r.Error)
	if err != nil {
		return nil, err
	}
	r.StartedAt = started.Time
	r.FinishedAt = sql.NullTime{Time: finished.Time, Valid: finished.Valid}
	return &r, nil
}

// collect drains rows with scan.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
