package fsv

import (
	"context"
	"fmt"
	"time"
)

// PathHistory returns every version of path, oldest first.
func (s *Service) PathHistory(ctx context.Context, path string) ([]*VersionRecord, error) {
	p := CanonicalPath(path)
	if p == "" {
		return nil, fmt.Errorf("path must be absolute: %q", path)
	}
	records, err := s.store.VersionsByPath(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", p, err)
	}
	return records, nil
}

// TreeAsOf returns the entries that existed at instant t.
func (s *Service) TreeAsOf(ctx context.Context, t time.Time) ([]*VersionRecord, error) {
	records, err := s.store.VersionsAsOf(ctx, t.UTC())
	if err != nil {
		return nil, fmt.Errorf("reading tree as of %s: %w", t.Format(time.RFC3339), err)
	}
	return records, nil
}

// Runs returns the most recent runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]*Run, error) {
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}
