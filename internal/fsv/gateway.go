package fsv

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Partition names used in logs and PersistenceError.
const (
	PartitionInsert = "insert"
	PartitionUpdate = "update"
	PartitionDelete = "delete"
)

// Gateway applies one diff partition per transaction.
//
// A partition that fails is rolled back as a whole and reported as a
// *PersistenceError; structural and invariant errors are returned unwrapped
// so the caller can abort the run.
type Gateway struct {
	store  Store
	logger Logger
}

// NewGateway creates a Gateway writing to store.
func NewGateway(store Store, logger Logger) *Gateway {
	return &Gateway{store: store, logger: logger}
}

// ApplyInitial inserts a whole tree into a store holding no entities. Paths
// without history start at version 1; paths that were tombstoned by an
// earlier run continue their numbering.
func (g *Gateway) ApplyInitial(ctx context.Context, entities []*Entity, eventTime time.Time) error {
	return g.apply(ctx, PartitionInsert, len(entities), func(tx Tx) error {
		ledger := NewLedger(tx)
		for _, e := range entities {
			v, err := ledger.NextVersion(ctx, e.Path, eventTime)
			if err != nil {
				return err
			}
			ledger.OpenVersion(e, OpInsert, v, eventTime)
		}
		if err := insertEntities(ctx, tx, entities); err != nil {
			return err
		}
		return ledger.Flush(ctx)
	})
}

// ApplyInserts writes added entities and their versions. Parent references
// to folders that already exist are rewritten to the stored folder id since
// snapshot ids are run-local.
//
// intoDirs holds stored files that are now directories. Their file rows are
// replaced by folder rows ahead of the added entities, which may live under
// them.
func (g *Gateway) ApplyInserts(ctx context.Context, added []*Entity, intoDirs []Modification, eventTime time.Time) error {
	return g.apply(ctx, PartitionInsert, len(added)+len(intoDirs), func(tx Tx) error {
		ledger := NewLedger(tx)
		resolved := make(map[string]sql.NullString)
		rows := make([]*Entity, 0, len(intoDirs)+len(added))

		var replacedFiles []string
		for _, m := range intoDirs {
			row, err := retype(ctx, ledger, m, eventTime)
			if err != nil {
				return err
			}
			replacedFiles = append(replacedFiles, m.Persisted.ID)
			resolved[row.Path] = sql.NullString{String: row.ID, Valid: true}
			rows = append(rows, row)
		}
		if len(replacedFiles) > 0 {
			if err := tx.DeleteFiles(ctx, replacedFiles); err != nil {
				return fmt.Errorf("deleting replaced files: %w", err)
			}
		}

		for _, e := range added {
			row := *e
			if e.ParentPath != "" {
				parentID, err := resolveParent(ctx, tx, e, resolved)
				if err != nil {
					return err
				}
				row.ParentID = parentID
			}

			v, err := ledger.NextVersion(ctx, row.Path, eventTime)
			if err != nil {
				return err
			}
			ledger.OpenVersion(&row, OpInsert, v, eventTime)
			rows = append(rows, &row)
		}

		if err := insertEntities(ctx, tx, rows); err != nil {
			return err
		}
		return ledger.Flush(ctx)
	})
}

// ApplyUpdates rewrites the timestamps of modified entities, matching rows by
// path, and versions each one. Type changes are handled by ApplyInserts and
// ApplyDeletes.
func (g *Gateway) ApplyUpdates(ctx context.Context, modified []Modification, eventTime time.Time) error {
	return g.apply(ctx, PartitionUpdate, len(modified), func(tx Tx) error {
		ledger := NewLedger(tx)
		for _, m := range modified {
			if m.Retyped() {
				return fmt.Errorf("%s changed between file and directory", m.Current.Path)
			}

			row := *m.Persisted
			row.CreateTS = m.Current.CreateTS
			row.ModifyTS = m.Current.ModifyTS
			if err := tx.UpdateTimestamps(ctx, &row); err != nil {
				return fmt.Errorf("updating %s: %w", row.Path, err)
			}

			v, err := ledger.NextVersion(ctx, row.Path, eventTime)
			if err != nil {
				return err
			}
			ledger.OpenVersion(&row, OpModify, v, eventTime)
		}
		return ledger.Flush(ctx)
	})
}

// ApplyDeletes removes deleted entities and writes a tombstone for each.
// Entities must be ordered for removal (deepest first).
//
// intoFiles holds stored folders that are now files. Their stored
// descendants are part of deleted; once those are gone each folder row is
// replaced by a file row.
func (g *Gateway) ApplyDeletes(ctx context.Context, deleted []*Entity, intoFiles []Modification, eventTime time.Time) error {
	return g.apply(ctx, PartitionDelete, len(deleted)+len(intoFiles), func(tx Tx) error {
		ledger := NewLedger(tx)
		var fileIDs []string
		var folderIDs []string

		for _, e := range deleted {
			isFolder, err := tx.IsFolder(ctx, e.ID)
			if err != nil {
				return fmt.Errorf("classifying %s: %w", e.Path, err)
			}
			if isFolder {
				folderIDs = append(folderIDs, e.ID)
			} else {
				fileIDs = append(fileIDs, e.ID)
			}

			v, err := ledger.NextVersion(ctx, e.Path, eventTime)
			if err != nil {
				return err
			}
			ledger.OpenVersion(e, OpDelete, v, eventTime)
		}

		var files []*Entity
		for _, m := range intoFiles {
			row, err := retype(ctx, ledger, m, eventTime)
			if err != nil {
				return err
			}
			folderIDs = append(folderIDs, m.Persisted.ID)
			files = append(files, row)
		}

		if len(fileIDs) > 0 {
			if err := tx.DeleteFiles(ctx, fileIDs); err != nil {
				return fmt.Errorf("deleting files: %w", err)
			}
		}
		for _, id := range folderIDs {
			if err := tx.DeleteFolder(ctx, id); err != nil {
				return fmt.Errorf("deleting folder %s: %w", id, err)
			}
		}
		if err := insertEntities(ctx, tx, files); err != nil {
			return err
		}
		return ledger.Flush(ctx)
	})
}

// retype builds the replacement row for an entity whose type changed and
// versions it as a modification. The parent of a retyped path is always a
// stored folder, so the stored parent id is kept.
func retype(ctx context.Context, ledger *Ledger, m Modification, eventTime time.Time) (*Entity, error) {
	row := *m.Current
	row.ParentID = m.Persisted.ParentID
	row.Description = m.Persisted.Description

	v, err := ledger.NextVersion(ctx, row.Path, eventTime)
	if err != nil {
		return nil, err
	}
	ledger.OpenVersion(&row, OpModify, v, eventTime)
	return &row, nil
}

func (g *Gateway) apply(ctx context.Context, partition string, n int, fn func(tx Tx) error) error {
	if n == 0 {
		return nil
	}
	log := WithFields(g.logger, "partition", partition)

	err := g.store.InTx(ctx, fn)
	if err == nil {
		log.Info("partition committed", "entries", n)
		return nil
	}
	if IsFatal(err) {
		log.Error("partition aborted", "error", err)
		return err
	}
	log.Error("partition rolled back", "entries", n, "error", err)
	return &PersistenceError{Partition: partition, Err: err}
}

// resolveParent finds the stored folder for e's parent path. A parent that is
// not stored yet is being inserted in this same partition under its snapshot id.
func resolveParent(ctx context.Context, tx Tx, e *Entity, cache map[string]sql.NullString) (sql.NullString, error) {
	if id, ok := cache[e.ParentPath]; ok {
		return id, nil
	}
	folders, err := tx.FindFoldersByPath(ctx, e.ParentPath)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("looking up parent of %s: %w", e.Path, err)
	}

	var id sql.NullString
	switch len(folders) {
	case 0:
		id = e.ParentID
	case 1:
		id = sql.NullString{String: folders[0].ID, Valid: true}
	default:
		return sql.NullString{}, &StructuralError{Reason: "ambiguous parent folder", Paths: []string{e.ParentPath}}
	}
	cache[e.ParentPath] = id
	return id, nil
}

func insertEntities(ctx context.Context, tx Tx, entities []*Entity) error {
	var folders, files []*Entity
	for _, e := range entities {
		if e.IsDir {
			folders = append(folders, e)
		} else {
			files = append(files, e)
		}
	}
	if len(folders) > 0 {
		if err := tx.InsertFolders(ctx, folders); err != nil {
			return fmt.Errorf("inserting folders: %w", err)
		}
	}
	if len(files) > 0 {
		if err := tx.InsertFiles(ctx, files); err != nil {
			return fmt.Errorf("inserting files: %w", err)
		}
	}
	return nil
}
