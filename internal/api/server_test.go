package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fsv-go/internal/fsv"
	"fsv-go/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

// newTestServer serves a store holding /data and /data/a.txt, where a.txt
// was modified at t1.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewTestDatabase(t)
	walker := testutil.NewMockWalker()
	clock := testutil.NewStubClock(t0)
	svc := fsv.NewService(store, walker, fsv.NewNopLogger(), clock)

	walker.AddDir("/data", t0)
	walker.AddFile("/data/a.txt", t0)
	if _, err := svc.Initialize(ctx, "/data"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	walker.Touch("/data/a.txt", t1)
	clock.Set(t1)
	if _, err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	run, err := store.CreateRun(ctx, fsv.OperationReconcile, "/data", t1)
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	run.Status = fsv.RunSuccess
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	clock.Set(t1.Add(24 * time.Hour))
	return NewServer(svc, clock, fsv.NewNopLogger())
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func get(t *testing.T, s *Server, target string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: decoding %q: %v", target, rec.Body.String(), err)
	}
	if env.Code != rec.Code {
		t.Errorf("GET %s: envelope code %d, status %d", target, env.Code, rec.Code)
	}
	return rec.Code, env
}

func TestServer_Status(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		target string
		want   int
	}{
		{"/api/healthz", http.StatusOK},
		{"/api/runs", http.StatusOK},
		{"/api/runs?limit=5", http.StatusOK},
		{"/api/runs?limit=zero", http.StatusBadRequest},
		{"/api/runs?limit=-1", http.StatusBadRequest},
		{"/api/versions?path=/data/a.txt", http.StatusOK},
		{"/api/versions?path=/data/missing.txt", http.StatusNotFound},
		{"/api/versions", http.StatusBadRequest},
		{"/api/versions?path=relative", http.StatusBadRequest},
		{"/api/tree", http.StatusOK},
		{"/api/tree?as_of=2024-01-15T10:30:00Z", http.StatusOK},
		{"/api/tree?as_of=yesterday", http.StatusOK},
		{"/api/tree?as_of=flibbertigibbet", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if got, _ := get(t, s, tt.target); got != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.target, got, tt.want)
			}
		})
	}
}

func TestServer_Versions(t *testing.T) {
	s := newTestServer(t)
	_, env := get(t, s, "/api/versions?path=/data/a.txt")

	var views []fsv.VersionView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d versions, want 2", len(views))
	}
	if views[0].Active || views[0].Op != "i" || !views[0].VersionEnd.Equal(t1) {
		t.Errorf("first version = %+v", views[0])
	}
	if !views[1].Active || views[1].Op != "m" || views[1].Version != 2 {
		t.Errorf("second version = %+v", views[1])
	}
}

func TestServer_Tree(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		asOf        string
		wantVersion int64
	}{
		{"2024-01-15T10:30:00Z", 1},
		{"", 2},
	}
	for _, tt := range tests {
		t.Run(tt.asOf, func(t *testing.T) {
			_, env := get(t, s, "/api/tree?as_of="+tt.asOf)
			var data struct {
				AsOf    time.Time         `json:"as_of"`
				Entries []fsv.VersionView `json:"entries"`
			}
			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatalf("decoding data: %v", err)
			}
			if len(data.Entries) != 2 {
				t.Fatalf("got %d entries, want 2", len(data.Entries))
			}
			if got := data.Entries[1].Version; got != tt.wantVersion {
				t.Errorf("a.txt version = %d, want %d", got, tt.wantVersion)
			}
		})
	}
}

func TestServer_Runs(t *testing.T) {
	s := newTestServer(t)
	_, env := get(t, s, "/api/runs")

	var views []fsv.RunView
	if err := json.Unmarshal(env.Data, &views); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if len(views) != 1 || views[0].Status != fsv.RunSuccess || views[0].FinishedAt == nil {
		t.Errorf("runs = %+v", views)
	}
}

type brokenReader struct{}

func (brokenReader) Runs(context.Context, int) ([]*fsv.Run, error) {
	return nil, errors.New("db gone")
}

func (brokenReader) PathHistory(context.Context, string) ([]*fsv.VersionRecord, error) {
	return nil, errors.New("db gone")
}

func (brokenReader) TreeAsOf(context.Context, time.Time) ([]*fsv.VersionRecord, error) {
	return nil, errors.New("db gone")
}

func TestServer_InternalErrors(t *testing.T) {
	s := NewServer(brokenReader{}, testutil.FixedClock(), fsv.NewNopLogger())
	for _, target := range []string{"/api/runs", "/api/versions?path=/x", "/api/tree"} {
		code, env := get(t, s, target)
		if code != http.StatusInternalServerError {
			t.Errorf("GET %s = %d, want 500", target, code)
		}
		if env.Message != "internal error" {
			t.Errorf("GET %s message = %q, want the cause hidden", target, env.Message)
		}
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	s := NewServer(brokenReader{}, testutil.FixedClock(), fsv.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}
