package app

import "fsv-go/internal/fsv"

// Operation describes the CLI command an FSVApp is built for.
type Operation struct {
	Name string
	// Mutating operations take the run lock and are recorded in runs.
	Mutating bool
	// Migrates brings the schema up to date instead of requiring it.
	Migrates bool
}

// Operations known to the CLI.
var (
	OpInitialize = Operation{Name: fsv.OperationInitialize, Mutating: true, Migrates: true}
	OpReconcile  = Operation{Name: fsv.OperationReconcile, Mutating: true}
	OpSync       = Operation{Name: "Sync", Mutating: true, Migrates: true}
	OpQuery      = Operation{Name: "Query"}
	OpArchive    = Operation{Name: "Archive"}
)

// runStatus maps a run's outcome to the status stored with it.
func runStatus(err error) string {
	if err != nil {
		return fsv.RunFailed
	}
	return fsv.RunSuccess
}
