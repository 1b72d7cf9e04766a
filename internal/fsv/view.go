package fsv

import "time"

// VersionView is the flat, serializable form of a VersionRecord.
type VersionView struct {
	Path         string    `json:"path" yaml:"path"`
	Version      int64     `json:"version" yaml:"version"`
	Op           string    `json:"op" yaml:"op"`
	IsDir        bool      `json:"is_dir" yaml:"is_dir"`
	Active       bool      `json:"active" yaml:"active"`
	EntityID     string    `json:"entity_id" yaml:"entity_id"`
	ParentID     string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreateTS     time.Time `json:"create_ts" yaml:"create_ts"`
	ModifyTS     time.Time `json:"modify_ts" yaml:"modify_ts"`
	VersionStart time.Time `json:"version_start" yaml:"version_start"`
	VersionEnd   time.Time `json:"version_end" yaml:"version_end"`
}

// View flattens r.
func (r *VersionRecord) View() VersionView {
	return VersionView{
		Path:         r.Path,
		Version:      r.Version,
		Op:           string(r.OpType),
		IsDir:        r.IsDir,
		Active:       r.IsActive,
		EntityID:     r.EntityID,
		ParentID:     r.ParentID.String,
		Description:  r.Description.String,
		CreateTS:     r.CreateTS,
		ModifyTS:     r.ModifyTS,
		VersionStart: r.VersionStart,
		VersionEnd:   r.VersionEnd,
	}
}

// RunView is the flat, serializable form of a Run.
type RunView struct {
	ID         int64      `json:"id" yaml:"id"`
	Operation  string     `json:"operation" yaml:"operation"`
	RootPath   string     `json:"root_path" yaml:"root_path"`
	Status     string     `json:"status" yaml:"status"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Added      int        `json:"added" yaml:"added"`
	Modified   int        `json:"modified" yaml:"modified"`
	Deleted    int        `json:"deleted" yaml:"deleted"`
	Unchanged  int        `json:"unchanged" yaml:"unchanged"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// View flattens r.
func (r *Run) View() RunView {
	v := RunView{
		ID:        r.ID,
		Operation: r.Operation,
		RootPath:  r.RootPath,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		Added:     r.Added,
		Modified:  r.Modified,
		Deleted:   r.Deleted,
		Unchanged: r.Unchanged,
		Error:     r.Error.String,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		v.FinishedAt = &t
	}
	return v
}

// VersionViews flattens a slice of records.
func VersionViews(records []*VersionRecord) []VersionView {
	out := make([]VersionView, len(records))
	for i, r := range records {
		out[i] = r.View()
	}
	return out
}

// RunViews flattens a slice of runs.
func RunViews(runs []*Run) []RunView {
	out := make([]RunView, len(runs))
	for i, r := range runs {
		out[i] = r.View()
	}
	return out
}
