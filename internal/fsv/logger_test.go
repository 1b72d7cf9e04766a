package fsv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recordingLogger struct {
	NopLogger
	calls [][]any
}

func (r *recordingLogger) Info(msg string, args ...any) {
	r.calls = append(r.calls, append([]any{msg}, args...))
}

func TestWithFields(t *testing.T) {
	rec := &recordingLogger{}
	job := WithFields(rec, "job", "sync")
	run := WithFields(job, "execution_id", "e1")

	run.Info("started", "n", 1)
	job.Info("idle")

	want := [][]any{
		{"started", "job", "sync", "execution_id", "e1", "n", 1},
		{"idle", "job", "sync"},
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if _, nested := run.(*fieldLogger).next.(*fieldLogger); nested {
		t.Error("WithFields nested field loggers instead of flattening")
	}
}
