package fsv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Operation names recorded on runs.
const (
	OperationInitialize = "Initialize"
	OperationReconcile  = "Reconcile"
)

// RunResult summarizes one Initialize or Reconcile call.
type RunResult struct {
	Operation        string
	RootPath         string
	EventTime        time.Time
	Added            int
	Modified         int
	Deleted          int
	Unchanged        int
	FailedPartitions []string
}

// Failed reports whether any partition was rolled back.
func (r *RunResult) Failed() bool {
	return len(r.FailedPartitions) > 0
}

// Service drives snapshot, assembly, reconciliation and persistence.
// Runs must not overlap; callers serialize them.
type Service struct {
	store   Store
	walker  Walker
	gateway *Gateway
	logger  Logger
	clock   Clock
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, walker Walker, logger Logger, clock Clock) *Service {
	return &Service{
		store:   store,
		walker:  walker,
		gateway: NewGateway(store, logger),
		logger:  logger,
		clock:   clock,
	}
}

// Initialize ingests the tree under rootPath into a store holding no
// entities. Every entity gets a version 1 record, or continues its numbering
// when an earlier run left a tombstone for its path, as happens after a
// Reconcile found the root missing.
func (s *Service) Initialize(ctx context.Context, rootPath string) (*RunResult, error) {
	root := CanonicalPath(rootPath)
	if root == "" {
		return nil, fmt.Errorf("root path must be absolute: %q", rootPath)
	}
	result := &RunResult{Operation: OperationInitialize, RootPath: root}

	err := s.timed(OperationInitialize, func() error {
		n, err := s.store.CountEntities(ctx)
		if err != nil {
			return fmt.Errorf("counting entities: %w", err)
		}
		if n > 0 {
			return ErrAlreadyInitialized
		}

		entities, err := s.snapshot(ctx, root)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			return fmt.Errorf("root %s is not a directory", root)
		}

		result.EventTime = CanonicalTime(s.clock.Now())
		if err := s.gateway.ApplyInitial(ctx, entities, result.EventTime); err != nil {
			var pe *PersistenceError
			if errors.As(err, &pe) {
				result.FailedPartitions = append(result.FailedPartitions, pe.Partition)
			}
			return err
		}
		result.Added = len(entities)
		return nil
	})
	return result, err
}

// Reconcile diffs the tree under the stored root against persisted state and
// applies the inserts, updates and deletes, one transaction each.
//
// A rolled-back partition does not stop later partitions; the run is then
// reported failed with the joined *PersistenceError values and the store may
// be partially updated. Structural and invariant errors abort immediately.
func (s *Service) Reconcile(ctx context.Context) (*RunResult, error) {
	result := &RunResult{Operation: OperationReconcile}

	err := s.timed(OperationReconcile, func() error {
		root, err := s.rootFolder(ctx)
		if err != nil {
			return err
		}
		result.RootPath = root.Path

		current, err := s.snapshot(ctx, root.Path)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			s.logger.Warn("root is missing or not a directory; every entry will be deleted", "root", root.Path)
		}

		persisted, err := s.store.Hierarchy(ctx)
		if err != nil {
			return fmt.Errorf("reading persisted hierarchy: %w", err)
		}

		diff := Reconcile(current, persisted)
		result.Unchanged = len(diff.Unchanged)
		result.EventTime = CanonicalTime(s.clock.Now())
		s.logger.Info("reconciled",
			"added", len(diff.Added),
			"modified", len(diff.Modified),
			"deleted", len(diff.Deleted),
			"unchanged", len(diff.Unchanged))

		return s.applyDiff(ctx, diff, result)
	})
	return result, err
}

// applyDiff runs the insert, update and delete partitions in that order.
// A path that became a directory is replaced in the insert partition, ahead
// of any new children; one that became a file is replaced in the delete
// partition, after its stored descendants are removed.
func (s *Service) applyDiff(ctx context.Context, diff *Diff, result *RunResult) error {
	var updates, intoDirs, intoFiles []Modification
	for _, m := range diff.Modified {
		switch {
		case !m.Retyped():
			updates = append(updates, m)
		case m.Current.IsDir:
			intoDirs = append(intoDirs, m)
		default:
			intoFiles = append(intoFiles, m)
		}
	}

	steps := []struct {
		added, modified, deleted int
		apply                    func() error
	}{
		{len(diff.Added), len(intoDirs), 0, func() error {
			return s.gateway.ApplyInserts(ctx, diff.Added, intoDirs, result.EventTime)
		}},
		{0, len(updates), 0, func() error {
			return s.gateway.ApplyUpdates(ctx, updates, result.EventTime)
		}},
		{0, len(intoFiles), len(diff.Deleted), func() error {
			return s.gateway.ApplyDeletes(ctx, diff.Deleted, intoFiles, result.EventTime)
		}},
	}

	var failures []error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(failures, err)...)
		}
		err := step.apply()
		if err == nil {
			result.Added += step.added
			result.Modified += step.modified
			result.Deleted += step.deleted
			continue
		}
		var pe *PersistenceError
		if !errors.As(err, &pe) {
			return errors.Join(append(failures, err)...)
		}
		result.FailedPartitions = append(result.FailedPartitions, pe.Partition)
		failures = append(failures, pe)
	}
	return errors.Join(failures...)
}

func (s *Service) snapshot(ctx context.Context, root string) ([]*Entity, error) {
	snap, err := s.walker.Walk(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	entities, err := Assemble(snap)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("snapshot assembled", "root", root, "entries", len(entities))
	return entities, nil
}

func (s *Service) rootFolder(ctx context.Context) (*Entity, error) {
	roots, err := s.store.RootFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding root folder: %w", err)
	}
	switch len(roots) {
	case 0:
		return nil, ErrNotInitialized
	case 1:
		return roots[0], nil
	default:
		paths := make([]string, len(roots))
		for i, r := range roots {
			paths[i] = r.Path
		}
		return nil, &StructuralError{Reason: "multiple stored roots", Paths: paths}
	}
}

// timed logs the start, duration and outcome of fn.
func (s *Service) timed(op string, fn func() error) error {
	start := s.clock.Now()
	s.logger.Debug("run started", "op", op)

	err := fn()
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		s.logger.Error("run failed", "op", op, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Info("run finished", "op", op, "duration", elapsed)
	return nil
}

// RootPath returns the path of the stored root folder.
func (s *Service) RootPath(ctx context.Context) (string, error) {
	root, err := s.rootFolder(ctx)
	if err != nil {
		return "", err
	}
	return root.Path, nil
}

// Initialized reports whether the store holds any entity.
func (s *Service) Initialized(ctx context.Context) (bool, error) {
	n, err := s.store.CountEntities(ctx)
	if err != nil {
		return false, fmt.Errorf("counting entities: %w", err)
	}
	return n > 0, nil
}
