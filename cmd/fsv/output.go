package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"fsv-go/internal/fsv"
)

// render writes v as json or yaml, or calls text for the default format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

const tsLayout = "2006-01-02 15:04:05"

func formatEnd(t time.Time) string {
	if t.Equal(fsv.OpenEnded) {
		return "-"
	}
	return t.Format(tsLayout)
}

func writeVersions(w io.Writer, views []fsv.VersionView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tOP\tFROM\tUNTIL\tMODIFIED\tPATH")
	for _, v := range views {
		marker := ""
		if v.Active {
			marker = "*"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Version, marker, v.Op,
			v.VersionStart.Format(tsLayout), formatEnd(v.VersionEnd),
			v.ModifyTS.Format(tsLayout), v.Path)
	}
	tw.Flush()
}

func writeTree(w io.Writer, views []fsv.VersionView) {
	for _, v := range views {
		kind := "f"
		if v.IsDir {
			kind = "d"
		}
		fmt.Fprintf(w, "%s  v%-3d %s  %s\n", kind, v.Version, v.ModifyTS.Format(tsLayout), v.Path)
	}
}

func writeRuns(w io.Writer, views []fsv.RunView) {
	for _, r := range views {
		duration := ""
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
		}
		fmt.Fprintf(w, "#%d  %-10s  %s  %-8s  +%d ~%d -%d  %s\n",
			r.ID, r.Operation, r.StartedAt.Format(tsLayout), r.Status,
			r.Added, r.Modified, r.Deleted, duration)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
}

func writeResult(w io.Writer, res *fsv.RunResult) {
	fmt.Fprintf(w, "%s %s: %d added, %d modified, %d deleted, %d unchanged\n",
		res.Operation, res.RootPath, res.Added, res.Modified, res.Deleted, res.Unchanged)
	if res.Failed() {
		fmt.Fprintf(w, "rolled back: %v\n", res.FailedPartitions)
	}
}
