package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"fsv-go/internal/config"
	"fsv-go/internal/database"
	"fsv-go/internal/encryption"
	"fsv-go/internal/fs"
	"fsv-go/internal/fsv"
	"fsv-go/internal/runlock"
	"fsv-go/internal/vault"
)

// snapshotName is the vault object the store snapshot is kept under.
const snapshotName = "db"

// FSVApp is the application layer between the CLI and fsv.Service.
// It constructs all dependencies from config, serializes mutating runs,
// records them, archives the store after each one and owns the store
// lifetime until Close.
type FSVApp struct {
	cfg       *config.Config
	op        Operation
	store     *database.Store
	vault     fsv.Vault
	encryptor fsv.Encryptor
	locker    runlock.Locker
	clock     fsv.Clock
	logger    fsv.Logger
	logCloser io.Closer
	service   *fsv.Service
}

// Option customizes an FSVApp.
type Option func(*options)

type options struct {
	walker  fsv.Walker
	clock   fsv.Clock
	console io.Writer
}

// WithWalker replaces the filesystem walker.
func WithWalker(w fsv.Walker) Option { return func(o *options) { o.walker = w } }

// WithClock replaces the wall clock used for run event times.
func WithClock(c fsv.Clock) Option { return func(o *options) { o.clock = c } }

// WithConsole sets where log records are echoed besides the log file. A nil
// writer disables the echo.
func WithConsole(w io.Writer) Option { return func(o *options) { o.console = w } }

// NewFSVApp creates a fully wired FSVApp from the given config.
// The caller must call Close when done.
func NewFSVApp(ctx context.Context, cfg *config.Config, op Operation, opts ...Option) (*FSVApp, error) {
	o := options{clock: fsv.RealClock{}, console: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	opID := o.clock.Now().UTC().Format("20060102T150405Z")
	slogger, logCloser, err := newLogger(cfg.LogDir, cfg.Log, opID, o.console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("op", op.Name)}

	a := &FSVApp{
		cfg:       cfg,
		op:        op,
		clock:     o.clock,
		logger:    logger,
		logCloser: logCloser,
	}
	if err := a.open(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *FSVApp) open(ctx context.Context, o options) error {
	store, err := database.NewStoreFromConfig(a.cfg.Database, a.cfg.StoreID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.store = store

	if a.op.Migrates || a.cfg.Database.Type == "memory" {
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
	} else if err := store.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Archive.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	if a.cfg.Archive.Enabled || a.op == OpArchive {
		v, err := vault.NewVaultFromConfig(ctx, a.cfg.Archive.Vault)
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		a.vault = v
	}
	if a.cfg.Archive.Enabled && a.op != OpArchive {
		if err := a.checkVaultVersion(ctx); err != nil {
			return err
		}
	}

	if a.op.Mutating {
		locker, err := runlock.NewLockerFromConfig(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("creating run lock: %w", err)
		}
		a.locker = locker
	}

	walker := o.walker
	if walker == nil {
		walker = fs.NewOSWalker(a.cfg.Filesystem.Ignore, fsv.UUIDGenerator{}, a.logger)
	}
	a.service = fsv.NewService(store, walker, a.logger, a.clock)
	return nil
}

// checkVaultVersion refuses to run against a store older than its archive.
func (a *FSVApp) checkVaultVersion(ctx context.Context) error {
	remote, err := a.vault.SnapshotVersion(ctx, a.cfg.StoreID, snapshotName)
	if err != nil {
		return fmt.Errorf("checking archived snapshot version: %w", err)
	}
	local, err := a.store.MaxRunID(ctx)
	if err != nil {
		return fmt.Errorf("checking local store version: %w", err)
	}
	if remote > local {
		return fmt.Errorf("local store is behind the archive (local=%d, remote=%d): restore with 'fsv archive pull' or re-initialize", local, remote)
	}
	return nil
}

// Service exposes the wired service for read-only consumers such as the API.
func (a *FSVApp) Service() *fsv.Service { return a.service }

// Config returns the config the app was built from.
func (a *FSVApp) Config() *config.Config { return a.cfg }

// runPlan is what a mutating command resolves once it holds the run lock.
type runPlan struct {
	operation string
	root      string
	run       func(context.Context) (*fsv.RunResult, error)
}

// Initialize ingests rawRoot, or the configured root when empty.
func (a *FSVApp) Initialize(ctx context.Context, rawRoot string) (*fsv.RunResult, error) {
	return a.runMutating(ctx, func(context.Context) (*runPlan, error) {
		return a.initializePlan(rawRoot)
	})
}

// Reconcile brings the store up to date with the tree under its root.
func (a *FSVApp) Reconcile(ctx context.Context) (*fsv.RunResult, error) {
	return a.runMutating(ctx, a.reconcilePlan)
}

// Sync runs Initialize against a store holding no entities and Reconcile
// otherwise.
func (a *FSVApp) Sync(ctx context.Context) (*fsv.RunResult, error) {
	return a.runMutating(ctx, func(ctx context.Context) (*runPlan, error) {
		initialized, err := a.service.Initialized(ctx)
		if err != nil {
			return nil, err
		}
		if !initialized {
			return a.initializePlan("")
		}
		return a.reconcilePlan(ctx)
	})
}

func (a *FSVApp) initializePlan(rawRoot string) (*runPlan, error) {
	root := rawRoot
	if root == "" {
		root = a.cfg.RootPath
	}
	if root == "" {
		return nil, fmt.Errorf("no root path given and root_path is not configured")
	}
	return &runPlan{
		operation: fsv.OperationInitialize,
		root:      root,
		run: func(ctx context.Context) (*fsv.RunResult, error) {
			return a.service.Initialize(ctx, root)
		},
	}, nil
}

func (a *FSVApp) reconcilePlan(ctx context.Context) (*runPlan, error) {
	root, err := a.service.RootPath(ctx)
	if err != nil {
		return nil, err
	}
	return &runPlan{operation: fsv.OperationReconcile, root: root, run: a.service.Reconcile}, nil
}

// runMutating holds the run lock around the planned run and records its
// outcome. The plan is resolved under the lock so it sees the store as the
// previous run left it.
func (a *FSVApp) runMutating(ctx context.Context, plan func(context.Context) (*runPlan, error)) (*fsv.RunResult, error) {
	if a.locker == nil {
		return nil, fmt.Errorf("mutating runs are not allowed for a %s app", a.op.Name)
	}
	runCtx, err := a.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	defer func() {
		if err := a.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("releasing run lock failed", "error", err)
		}
	}()

	p, err := plan(runCtx)
	if err != nil {
		return nil, err
	}

	run, err := a.store.CreateRun(runCtx, p.operation, p.root, fsv.CanonicalTime(a.clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	res, runErr := p.run(runCtx)
	if cause := context.Cause(runCtx); errors.Is(cause, runlock.ErrLeaseLost) {
		runErr = errors.Join(runErr, cause)
	}
	a.finishRun(context.WithoutCancel(ctx), run, res, runErr)

	if a.cfg.Archive.Enabled {
		if err := a.archive(context.WithoutCancel(ctx), run.ID); err != nil {
			a.logger.Error("archiving store failed", "run", run.ID, "error", err)
			if runErr == nil {
				return res, err
			}
		}
	}
	return res, runErr
}

func (a *FSVApp) finishRun(ctx context.Context, run *fsv.Run, res *fsv.RunResult, runErr error) {
	run.Status = runStatus(runErr)
	run.FinishedAt.Time, run.FinishedAt.Valid = fsv.CanonicalTime(a.clock.Now()), true
	if res != nil {
		run.Added, run.Modified, run.Deleted, run.Unchanged = res.Added, res.Modified, res.Deleted, res.Unchanged
	}
	if runErr != nil {
		run.Error.String, run.Error.Valid = runErr.Error(), true
	}
	if err := a.store.FinishRun(ctx, run); err != nil {
		a.logger.Error("recording run outcome failed", "run", run.ID, "error", err)
	}
}

// History resolves rawPath and returns its version history.
func (a *FSVApp) History(ctx context.Context, rawPath string) ([]*fsv.VersionRecord, error) {
	return a.service.PathHistory(ctx, rawPath)
}

// Tree returns the entries alive at the instant described by when.
func (a *FSVApp) Tree(ctx context.Context, when string) ([]*fsv.VersionRecord, error) {
	t, err := fsv.ParseInstant(when, a.clock.Now())
	if err != nil {
		return nil, err
	}
	return a.service.TreeAsOf(ctx, t)
}

// Runs returns the most recent runs.
func (a *FSVApp) Runs(ctx context.Context, limit int) ([]*fsv.Run, error) {
	return a.service.Runs(ctx, limit)
}

// Logger returns the app's logger.
func (a *FSVApp) Logger() fsv.Logger { return a.logger }

// Now returns the app clock's current time.
func (a *FSVApp) Now() time.Time { return a.clock.Now() }

// Close releases the store, lock and log file.
func (a *FSVApp) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing run lock: %w", err))
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
	return errors.Join(errs...)
}
