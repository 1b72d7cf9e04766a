package fsv

import "sort"

// Modification pairs a changed entity's current state with its stored row.
type Modification struct {
	Current   *Entity
	Persisted *Entity
}

// Retyped reports whether the path changed between file and directory.
func (m Modification) Retyped() bool {
	return m.Current.IsDir != m.Persisted.IsDir
}

// Diff is the full outer join of current and persisted state by path.
type Diff struct {
	// Added keeps the parent-before-child order of the current list.
	Added []*Entity
	// Modified is ordered by path. It includes paths that changed between
	// file and directory; see Modification.Retyped.
	Modified []Modification
	// Deleted is ordered deepest first, files before folders at equal depth.
	Deleted []*Entity
	// Unchanged holds the paths dropped from further processing.
	Unchanged []string
}

// Empty reports whether the diff carries no change.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// Reconcile partitions the union of current and persisted paths into
// Added, Modified, Deleted and Unchanged. A path whose type or modify_ts
// differs is modified.
func Reconcile(current, persisted []*Entity) *Diff {
	stored := make(map[string]*Entity, len(persisted))
	for _, e := range persisted {
		stored[e.Path] = e
	}

	d := &Diff{}
	seen := make(map[string]bool, len(current))
	for _, cur := range current {
		seen[cur.Path] = true
		old, ok := stored[cur.Path]
		switch {
		case !ok:
			d.Added = append(d.Added, cur)
		case cur.IsDir != old.IsDir, !cur.ModifyTS.Equal(old.ModifyTS):
			d.Modified = append(d.Modified, Modification{Current: cur, Persisted: old})
		default:
			d.Unchanged = append(d.Unchanged, cur.Path)
		}
	}
	for _, old := range persisted {
		if !seen[old.Path] {
			d.Deleted = append(d.Deleted, old)
		}
	}

	sort.Slice(d.Modified, func(i, j int) bool {
		return d.Modified[i].Current.Path < d.Modified[j].Current.Path
	})
	sort.Strings(d.Unchanged)
	sortForRemoval(d.Deleted)
	return d
}

// sortForRemoval orders entities so that no row is removed before its children.
func sortForRemoval(es []*Entity) {
	sort.Slice(es, func(i, j int) bool {
		di, dj := Depth(es[i].Path), Depth(es[j].Path)
		if di != dj {
			return di > dj
		}
		if es[i].IsDir != es[j].IsDir {
			return !es[i].IsDir
		}
		return es[i].Path < es[j].Path
	})
}
