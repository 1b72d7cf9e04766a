package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies fragments, basename globs and path globs", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"venv", "*.log", "build/*.o"})
		want := []matchKind{matchFragment, matchBase, matchPath}
		for i, k := range want {
			if m.patterns[i].kind != k {
				t.Errorf("pattern %q kind = %v, want %v", m.patterns[i].pattern, m.patterns[i].kind, k)
			}
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{
			name:         "fragment matches directory name",
			patterns:     []string{"__pycache__"},
			relativePath: filepath.Join("pkg", "__pycache__"),
			want:         true,
		},
		{
			name:         "fragment matches inside a longer name",
			patterns:     []string{"venv"},
			relativePath: filepath.Join("project", ".venv311"),
			want:         true,
		},
		{
			name:         "fragment matches multi-segment path",
			patterns:     []string{"build/output"},
			relativePath: filepath.Join("build", "output", "a.bin"),
			want:         true,
		},
		{
			name:         "fragment does not match unrelated path",
			patterns:     []string{".idea"},
			relativePath: filepath.Join("src", "main.go"),
			want:         false,
		},
		{
			name:         "basename glob matches file in subdirectory",
			patterns:     []string{"*.log"},
			relativePath: filepath.Join("sub", "app.log"),
			want:         true,
		},
		{
			name:         "basename glob does not match different extension",
			patterns:     []string{"*.log"},
			relativePath: "app.txt",
			want:         false,
		},
		{
			name:         "path glob matches relative path",
			patterns:     []string{"build/*.o"},
			relativePath: filepath.Join("build", "main.o"),
			want:         true,
		},
		{
			name:         "path glob does not match other directory",
			patterns:     []string{"build/*.o"},
			relativePath: filepath.Join("src", "main.o"),
			want:         false,
		},
		{
			name:         "question mark wildcard",
			patterns:     []string{"?.txt"},
			relativePath: "a.txt",
			want:         true,
		},
		{
			name:         "character class",
			patterns:     []string{"*.[oa]"},
			relativePath: "main.o",
			want:         true,
		},
		{
			name:         "walk root never matches",
			patterns:     []string{"."},
			relativePath: ".",
			want:         false,
		},
		{
			name:         "no patterns matches nothing",
			patterns:     nil,
			relativePath: "anything.txt",
			want:         false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, IgnoreFileName)
		content := "*.log\n# comment\n\nnode_modules\nbuild/*.o\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		// Raw lines, including blanks and comments.
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}

		m := NewIgnoreMatcher(patterns)
		if len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}

func TestNewTreeMatcher(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("*.tmp\n"), 0644); err != nil {
		t.Fatalf("writing ignore file: %v", err)
	}

	m, err := NewTreeMatcher(root, []string{"node_modules"})
	if err != nil {
		t.Fatalf("NewTreeMatcher() error = %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"venv", true},
		{"__pycache__", true},
		{IgnoreFileName, true},
		{"web/node_modules/x.js", true},
		{"scratch.tmp", true},
		{"src/main.go", false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
