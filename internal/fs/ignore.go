package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are always applied regardless of config or .fsvignore.
var defaultIgnorePatterns = []string{IgnoreFileName, "venv", ".idea", "__pycache__"}

type matchKind int

const (
	// matchFragment ignores any relative path containing the pattern.
	matchFragment matchKind = iota
	// matchBase globs against the basename.
	matchBase
	// matchPath globs against the whole slash-separated relative path.
	matchPath
)

type ignorePattern struct {
	pattern string
	kind    matchKind
}

// IgnoreMatcher decides which entries a walk skips.
//
// A pattern without glob metacharacters is a name fragment and matches any
// relative path that contains it. A glob without '/' matches the basename; a
// glob with '/' matches the relative path from the walk root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p := ignorePattern{pattern: filepath.ToSlash(raw)}
		switch {
		case !strings.ContainsAny(raw, "*?["):
			p.kind = matchFragment
		case strings.Contains(p.pattern, "/"):
			p.kind = matchPath
		default:
			p.kind = matchBase
		}
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether relativePath should be skipped. The walk root
// itself (".") never matches.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 || relativePath == "." || relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		switch p.kind {
		case matchFragment:
			matched = strings.Contains(normalized, p.pattern)
		case matchPath:
			matched, _ = filepath.Match(p.pattern, normalized)
		case matchBase:
			matched, _ = filepath.Match(p.pattern, basename)
		}
		if matched {
			return true
		}
	}
	return false
}

// NewTreeMatcher builds the matcher a walk of root applies: the built-in
// defaults, then extra, then the patterns in root's ignore file.
func NewTreeMatcher(root string, extra []string) (*IgnoreMatcher, error) {
	patterns := append(append([]string{}, defaultIgnorePatterns...), extra...)
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(append(patterns, fromFile...)), nil
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
