package fsv

import (
	"database/sql"
	"path/filepath"
	"sort"
)

// Assemble links a flat snapshot into entities ordered parent before child.
//
// The root is the unique record of minimum depth and must be a directory.
// Every other record must be reachable from the root through a chain of
// one-level folder parents; anything else is reported as an orphan.
func Assemble(snap Snapshot) ([]*Entity, error) {
	if len(snap) == 0 {
		return nil, nil
	}

	root, err := findRoot(snap)
	if err != nil {
		return nil, err
	}

	children := make(map[string][]*Record, len(snap))
	for p, rec := range snap {
		if p == root.Path {
			continue
		}
		parent := filepath.Dir(p)
		if !IsChildPath(parent, p) {
			continue
		}
		children[parent] = append(children[parent], rec)
	}
	for _, recs := range children {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })
	}

	rootEntity := entityFrom(root, nil)
	out := make([]*Entity, 0, len(snap))
	out = append(out, rootEntity)

	stack := []*Entity{rootEntity}
	for len(stack) > 0 {
		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var dirs []*Entity
		for _, rec := range children[folder.Path] {
			e := entityFrom(rec, folder)
			out = append(out, e)
			if e.IsDir {
				dirs = append(dirs, e)
			}
		}
		// Push in reverse so the first subdirectory is expanded next.
		for i := len(dirs) - 1; i >= 0; i-- {
			stack = append(stack, dirs[i])
		}
	}

	if len(out) != len(snap) {
		return nil, &StructuralError{Reason: "orphaned entries", Paths: orphans(snap, out)}
	}
	return out, nil
}

func findRoot(snap Snapshot) (*Record, error) {
	minDepth := -1
	var candidates []*Record
	for p, rec := range snap {
		d := Depth(p)
		switch {
		case minDepth == -1 || d < minDepth:
			minDepth = d
			candidates = []*Record{rec}
		case d == minDepth:
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) > 1 {
		paths := make([]string, len(candidates))
		for i, c := range candidates {
			paths[i] = c.Path
		}
		sort.Strings(paths)
		return nil, &StructuralError{Reason: "ambiguous root", Paths: paths}
	}
	root := candidates[0]
	if !root.IsDir {
		return nil, &StructuralError{Reason: "root is not a directory", Paths: []string{root.Path}}
	}
	return root, nil
}

func entityFrom(rec *Record, parent *Entity) *Entity {
	e := &Entity{
		ID:       rec.ID,
		Path:     rec.Path,
		IsDir:    rec.IsDir,
		CreateTS: rec.CreateTS,
		ModifyTS: rec.ModifyTS,
	}
	if parent != nil {
		e.ParentID = sql.NullString{String: parent.ID, Valid: true}
		e.ParentPath = parent.Path
	}
	return e
}

func orphans(snap Snapshot, placed []*Entity) []string {
	seen := make(map[string]bool, len(placed))
	for _, e := range placed {
		seen[e.Path] = true
	}
	var out []string
	for p := range snap {
		if !seen[p] {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
