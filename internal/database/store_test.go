package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fsv-go/internal/fsv"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestStore creates a migrated in-memory store.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(SQLite, SQLiteDSN(":memory:"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func folder(id, path, parentID string, ts time.Time) *fsv.Entity {
	e := &fsv.Entity{ID: id, Path: path, IsDir: true, CreateTS: ts, ModifyTS: ts}
	if parentID != "" {
		e.ParentID = sql.NullString{String: parentID, Valid: true}
	}
	return e
}

func file(id, path, folderID string, ts time.Time) *fsv.Entity {
	return &fsv.Entity{
		ID: id, Path: path, ParentID: sql.NullString{String: folderID, Valid: true},
		CreateTS: ts, ModifyTS: ts,
	}
}

// seedTree stores /r, /r/a, /r/a/x.txt and /r/y.txt.
func seedTree(t *testing.T, s *Store) {
	t.Helper()
	err := s.InTx(context.Background(), func(tx fsv.Tx) error {
		if err := tx.InsertFolders(context.Background(), []*fsv.Entity{
			folder("f-r", "/r", "", t0),
			folder("f-a", "/r/a", "f-r", t0),
		}); err != nil {
			return err
		}
		return tx.InsertFiles(context.Background(), []*fsv.Entity{
			file("x", "/r/a/x.txt", "f-a", t0),
			file("y", "/r/y.txt", "f-r", t0),
		})
	})
	if err != nil {
		t.Fatalf("seeding tree: %v", err)
	}
}

func TestStore_InTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		s := newTestStore(t)
		seedTree(t, s)

		n, err := s.CountEntities(ctx)
		if err != nil {
			t.Fatalf("CountEntities() error = %v", err)
		}
		if n != 4 {
			t.Errorf("CountEntities() = %d, want 4", n)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		s := newTestStore(t)
		boom := errors.New("boom")

		err := s.InTx(ctx, func(tx fsv.Tx) error {
			if err := tx.InsertFolders(ctx, []*fsv.Entity{folder("f-r", "/r", "", t0)}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("InTx() error = %v, want boom", err)
		}
		if n, _ := s.CountEntities(ctx); n != 0 {
			t.Errorf("CountEntities() after rollback = %d, want 0", n)
		}
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		s := newTestStore(t)

		func() {
			defer func() { _ = recover() }()
			_ = s.InTx(ctx, func(tx fsv.Tx) error {
				if err := tx.InsertFolders(ctx, []*fsv.Entity{folder("f-r", "/r", "", t0)}); err != nil {
					return err
				}
				panic("mid-transaction")
			})
		}()

		if n, err := s.CountEntities(ctx); err != nil || n != 0 {
			t.Errorf("CountEntities() after panic = %d, %v; want 0, nil", n, err)
		}
	})
}

func TestStore_Hierarchy(t *testing.T) {
	s := newTestStore(t)
	seedTree(t, s)

	got, err := s.Hierarchy(context.Background())
	if err != nil {
		t.Fatalf("Hierarchy() error = %v", err)
	}

	type row struct {
		ID, Path, ParentPath string
		IsDir                bool
	}
	var rows []row
	for _, e := range got {
		rows = append(rows, row{e.ID, e.Path, e.ParentPath, e.IsDir})
		if !e.CreateTS.Equal(t0) || !e.ModifyTS.Equal(t0) {
			t.Errorf("%s timestamps = %v/%v, want %v", e.Path, e.CreateTS, e.ModifyTS, t0)
		}
	}
	want := []row{
		{"f-r", "/r", "", true},
		{"f-a", "/r/a", "/r", true},
		{"x", "/r/a/x.txt", "/r/a", false},
		{"y", "/r/y.txt", "/r", false},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Hierarchy() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_RootFolders(t *testing.T) {
	s := newTestStore(t)
	roots, err := s.RootFolders(context.Background())
	if err != nil {
		t.Fatalf("RootFolders() error = %v", err)
	}
	if len(roots) != 0 {
		t.Errorf("RootFolders() on empty store = %d, want 0", len(roots))
	}

	seedTree(t, s)
	roots, err = s.RootFolders(context.Background())
	if err != nil {
		t.Fatalf("RootFolders() error = %v", err)
	}
	if len(roots) != 1 || roots[0].Path != "/r" || !roots[0].IsDir {
		t.Errorf("RootFolders() = %+v, want /r", roots)
	}
}

func TestQueries_FolderLookups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedTree(t, s)

	err := s.InTx(ctx, func(tx fsv.Tx) error {
		found, err := tx.FindFoldersByPath(ctx, "/r/a")
		if err != nil {
			return err
		}
		if len(found) != 1 || found[0].ID != "f-a" || found[0].ParentID.String != "f-r" {
			t.Errorf("FindFoldersByPath(/r/a) = %+v, want f-a under f-r", found)
		}

		missing, err := tx.FindFoldersByPath(ctx, "/r/b")
		if err != nil {
			return err
		}
		if len(missing) != 0 {
			t.Errorf("FindFoldersByPath(/r/b) = %d rows, want 0", len(missing))
		}

		for id, want := range map[string]bool{"f-a": true, "x": false, "nope": false} {
			got, err := tx.IsFolder(ctx, id)
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("IsFolder(%s) = %v, want %v", id, got, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
}

func TestQueries_UpdateTimestamps(t *testing.T) {
	ctx := context.Background()
	t1 := t0.Add(time.Hour)

	t.Run("updates file by path", func(t *testing.T) {
		s := newTestStore(t)
		seedTree(t, s)

		err := s.InTx(ctx, func(tx fsv.Tx) error {
			return tx.UpdateTimestamps(ctx, &fsv.Entity{Path: "/r/y.txt", CreateTS: t0, ModifyTS: t1})
		})
		if err != nil {
			t.Fatalf("UpdateTimestamps() error = %v", err)
		}

		got, _ := s.Hierarchy(ctx)
		for _, e := range got {
			if e.Path == "/r/y.txt" && !e.ModifyTS.Equal(t1) {
				t.Errorf("modify_ts = %v, want %v", e.ModifyTS, t1)
			}
		}
	})

	t.Run("fails when no row matches", func(t *testing.T) {
		s := newTestStore(t)
		seedTree(t, s)

		err := s.InTx(ctx, func(tx fsv.Tx) error {
			// A folder path against the files table matches nothing.
			return tx.UpdateTimestamps(ctx, &fsv.Entity{Path: "/r/a", CreateTS: t0, ModifyTS: t1})
		})
		if err == nil {
			t.Error("UpdateTimestamps() expected error for unmatched path")
		}
	})
}

func TestQueries_Deletes(t *testing.T) {
	ctx := context.Background()

	t.Run("files then folder", func(t *testing.T) {
		s := newTestStore(t)
		seedTree(t, s)

		err := s.InTx(ctx, func(tx fsv.Tx) error {
			if err := tx.DeleteFiles(ctx, []string{"x"}); err != nil {
				return err
			}
			return tx.DeleteFolder(ctx, "f-a")
		})
		if err != nil {
			t.Fatalf("delete error = %v", err)
		}
		if n, _ := s.CountEntities(ctx); n != 2 {
			t.Errorf("CountEntities() = %d, want 2", n)
		}
	})

	t.Run("folder with files is rejected", func(t *testing.T) {
		s := newTestStore(t)
		seedTree(t, s)

		err := s.InTx(ctx, func(tx fsv.Tx) error {
			return tx.DeleteFolder(ctx, "f-a")
		})
		if err == nil {
			t.Error("DeleteFolder() expected foreign key error")
		}
		if n, _ := s.CountEntities(ctx); n != 4 {
			t.Errorf("CountEntities() = %d, want 4", n)
		}
	})

	t.Run("unknown ids fail", func(t *testing.T) {
		s := newTestStore(t)
		seedTree(t, s)

		if err := s.InTx(ctx, func(tx fsv.Tx) error { return tx.DeleteFiles(ctx, []string{"x", "ghost"}) }); err == nil {
			t.Error("DeleteFiles() expected error for unknown id")
		}
		if err := s.InTx(ctx, func(tx fsv.Tx) error { return tx.DeleteFolder(ctx, "ghost") }); err == nil {
			t.Error("DeleteFolder() expected error for unknown id")
		}
		if n, _ := s.CountEntities(ctx); n != 4 {
			t.Errorf("CountEntities() = %d, want 4", n)
		}
	})
}

func TestQueries_InsertChunking(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const n = 500
	folders := []*fsv.Entity{folder("root", "/big", "", t0)}
	var files []*fsv.Entity
	for i := 0; i < n; i++ {
		files = append(files, file(fmt.Sprintf("file-%d", i), fmt.Sprintf("/big/%04d", i), "root", t0))
	}

	err := s.InTx(ctx, func(tx fsv.Tx) error {
		if err := tx.InsertFolders(ctx, folders); err != nil {
			return err
		}
		if err := tx.InsertFiles(ctx, files); err != nil {
			return err
		}
		ids := make([]string, 0, n)
		for _, f := range files[:300] {
			ids = append(ids, f.ID)
		}
		return tx.DeleteFiles(ctx, ids)
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if got, _ := s.CountEntities(ctx); got != n+1-300 {
		t.Errorf("CountEntities() = %d, want %d", got, n+1-300)
	}
}

func TestQueries_Versions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	t1 := t0.Add(time.Hour)

	v1 := &fsv.VersionRecord{
		EntityID: "x", Path: "/r/x", IsDir: false, CreateTS: t0, ModifyTS: t0,
		IsActive: true, OpType: fsv.OpInsert, Version: 1, VersionStart: t0, VersionEnd: fsv.OpenEnded,
	}
	if err := s.InTx(ctx, func(tx fsv.Tx) error { return tx.InsertVersions(ctx, []*fsv.VersionRecord{v1}) }); err != nil {
		t.Fatalf("InsertVersions() error = %v", err)
	}

	err := s.InTx(ctx, func(tx fsv.Tx) error {
		active, err := tx.ActiveVersions(ctx, "/r/x")
		if err != nil {
			return err
		}
		if len(active) != 1 {
			return fmt.Errorf("ActiveVersions() = %d rows, want 1", len(active))
		}
		if active[0].PathHash != fsv.PathHash("/r/x") {
			t.Errorf("PathHash = %q, want %q", active[0].PathHash, fsv.PathHash("/r/x"))
		}
		if !active[0].VersionEnd.Equal(fsv.OpenEnded) {
			t.Errorf("VersionEnd = %v, want %v", active[0].VersionEnd, fsv.OpenEnded)
		}
		if err := tx.CloseVersion(ctx, active[0].ID, t1); err != nil {
			return err
		}
		if err := tx.CloseVersion(ctx, active[0].ID, t1); err == nil {
			t.Error("second CloseVersion() expected error")
		}
		return tx.InsertVersions(ctx, []*fsv.VersionRecord{{
			EntityID: "x", Path: "/r/x", CreateTS: t0, ModifyTS: t1,
			IsActive: true, OpType: fsv.OpModify, Version: 2, VersionStart: t1, VersionEnd: fsv.OpenEnded,
		}})
	})
	if err != nil {
		t.Fatalf("versioning error = %v", err)
	}

	history, err := s.VersionsByPath(ctx, "/r/x")
	if err != nil {
		t.Fatalf("VersionsByPath() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("VersionsByPath() = %d rows, want 2", len(history))
	}
	if history[0].IsActive || !history[0].VersionEnd.Equal(t1) {
		t.Errorf("v1 = active %v end %v, want closed at %v", history[0].IsActive, history[0].VersionEnd, t1)
	}
	if !history[1].IsActive || history[1].OpType != fsv.OpModify {
		t.Errorf("v2 = active %v op %q, want active modify", history[1].IsActive, history[1].OpType)
	}

	t.Run("as of", func(t *testing.T) {
		tests := []struct {
			at   time.Time
			want []int64
		}{
			{t0.Add(-time.Second), nil},
			{t0, []int64{1}},
			{t0.Add(30 * time.Minute), []int64{1}},
			{t1, []int64{2}},
			{t1.Add(24 * time.Hour), []int64{2}},
		}
		for _, tt := range tests {
			recs, err := s.VersionsAsOf(ctx, tt.at)
			if err != nil {
				t.Fatalf("VersionsAsOf() error = %v", err)
			}
			var got []int64
			for _, r := range recs {
				got = append(got, r.Version)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("VersionsAsOf(%v) mismatch (-want +got):\n%s", tt.at, diff)
			}
		}
	})
}

func TestQueries_SecondActiveVersionRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := func(v int64) *fsv.VersionRecord {
		return &fsv.VersionRecord{
			EntityID: "x", Path: "/r/x", CreateTS: t0, ModifyTS: t0,
			IsActive: true, OpType: fsv.OpInsert, Version: v, VersionStart: t0, VersionEnd: fsv.OpenEnded,
		}
	}
	err := s.InTx(ctx, func(tx fsv.Tx) error {
		return tx.InsertVersions(ctx, []*fsv.VersionRecord{rec(1), rec(2)})
	})
	if err == nil {
		t.Error("InsertVersions() expected unique active index violation")
	}
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if id, err := s.MaxRunID(ctx); err != nil || id != 0 {
		t.Fatalf("MaxRunID() on empty store = %d, %v; want 0, nil", id, err)
	}

	first, err := s.CreateRun(ctx, "initialize", "/r", t0)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	first.Status = fsv.RunSuccess
	first.Added = 4
	first.FinishedAt = sql.NullTime{Time: t0.Add(time.Second), Valid: true}
	if err := s.FinishRun(ctx, first); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	second, err := s.CreateRun(ctx, "reconcile", "/r", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	second.Status = fsv.RunFailed
	second.Error = sql.NullString{String: "insert partition rolled back", Valid: true}
	second.FinishedAt = sql.NullTime{Time: t0.Add(2 * time.Minute), Valid: true}
	if err := s.FinishRun(ctx, second); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() = %d runs, want 2", len(runs))
	}
	if runs[0].ID != second.ID || runs[0].Status != fsv.RunFailed || runs[0].Error.String == "" {
		t.Errorf("newest run = %+v, want failed run %d with error", runs[0], second.ID)
	}
	if runs[1].Added != 4 || !runs[1].FinishedAt.Valid || !runs[1].StartedAt.Equal(t0) {
		t.Errorf("oldest run = %+v, want 4 added, finished, started %v", runs[1], t0)
	}

	if id, _ := s.MaxRunID(ctx); id != second.ID {
		t.Errorf("MaxRunID() = %d, want %d", id, second.ID)
	}

	if err := s.FinishRun(ctx, &fsv.Run{ID: 999, Status: fsv.RunSuccess}); err == nil {
		t.Error("FinishRun() for unknown run expected error")
	}
}

func TestStore_BackupTo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedTree(t, s)

	path := filepath.Join(t.TempDir(), "copy.db")
	if err := s.BackupTo(ctx, path); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	copyStore, err := NewStore(SQLite, SQLiteDSN(path))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copyStore.Close()

	if err := copyStore.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	if n, _ := copyStore.CountEntities(ctx); n != 4 {
		t.Errorf("backup CountEntities() = %d, want 4", n)
	}

	pg := NewStoreFromDB(s.DB(), Postgres)
	if err := pg.BackupTo(ctx, path+".2"); err == nil {
		t.Error("BackupTo() on non-sqlite store expected error")
	}
}
