package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fsv-go/internal/api"
	"fsv-go/internal/app"
	"fsv-go/internal/config"
	"fsv-go/internal/fsv"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an FSVApp. The caller must defer a.Close().
func newApp(ctx context.Context, op app.Operation) (*app.FSVApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := app.LoadConfig(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewFSVApp(ctx, cfg, op)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "fsv",
	Short:        "Filesystem tree version ledger",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [ROOT]",
	Short: "Initialize configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		storeID := uuid.New().String()
		cfg := config.NewConfig(storeID, defaults["base_dir"])
		if len(args) == 1 {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}
			cfg.RootPath = root
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Store ID: %s\n", storeID)
		fmt.Printf("Data Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := app.LoadConfig(defaults["config_path"], defaults["base_dir"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// init command
var initCmd = &cobra.Command{
	Use:   "init [ROOT]",
	Short: "Ingest a tree into an empty store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		a, err := newApp(ctx, app.OpInitialize)
		if err != nil {
			return err
		}
		defer a.Close()

		var root string
		if len(args) == 1 {
			if root, err = filepath.Abs(args[0]); err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}
		}

		res, err := a.Initialize(ctx, root)
		if res != nil {
			writeResult(os.Stdout, res)
		}
		return err
	},
}

func runCommand(use, short string, op app.Operation, run func(*app.FSVApp, context.Context) (*fsv.RunResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			a, err := newApp(ctx, op)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := run(a, ctx)
			if res != nil {
				writeResult(os.Stdout, res)
			}
			return err
		},
	}
}

var reconcileCmd = runCommand("reconcile", "Record changes since the last run", app.OpReconcile, (*app.FSVApp).Reconcile)

var syncCmd = runCommand("sync", "Initialize an empty store, otherwise reconcile", app.OpSync, (*app.FSVApp).Sync)

// log command
var logCmd = &cobra.Command{
	Use:   "log PATH",
	Short: "View the version history of a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		a, err := newApp(cmd.Context(), app.OpQuery)
		if err != nil {
			return err
		}
		defer a.Close()

		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		records, err := a.History(cmd.Context(), absPath)
		if err != nil {
			return err
		}
		if len(records) == 0 && format == "text" {
			fmt.Println("No history.")
			return nil
		}

		views := fsv.VersionViews(records)
		return render(os.Stdout, format, views, func(w io.Writer) { writeVersions(w, views) })
	},
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the tree as it was at a point in time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		asOf, _ := cmd.Flags().GetString("as-of")

		a, err := newApp(cmd.Context(), app.OpQuery)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Tree(cmd.Context(), asOf)
		if err != nil {
			return err
		}

		views := fsv.VersionViews(records)
		return render(os.Stdout, format, views, func(w io.Writer) { writeTree(w, views) })
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		a, err := newApp(cmd.Context(), app.OpQuery)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.Runs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 && format == "text" {
			fmt.Println("No runs recorded.")
			return nil
		}

		views := fsv.RunViews(runs)
		return render(os.Stdout, format, views, func(w io.Writer) { writeRuns(w, views) })
	},
}

// schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Sync on a cron schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, _ := cmd.Flags().GetString("cron")

		ctx, cancel := signalContext(cmd)
		defer cancel()

		a, err := newApp(ctx, app.OpSync)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Schedule(ctx, spec)
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync whenever the tree changes until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")

		ctx, cancel := signalContext(cmd)
		defer cancel()

		a, err := newApp(ctx, app.OpSync)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Watch(ctx, debounce)
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, cancel := signalContext(cmd)
		defer cancel()

		a, err := newApp(ctx, app.OpQuery)
		if err != nil {
			return err
		}
		defer a.Close()

		if addr == "" {
			addr = a.Config().Server.Addr
		}
		srv := api.NewServer(a.Service(), fsv.RealClock{}, a.Logger())
		return srv.ListenAndServe(ctx, addr)
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage store snapshots in the vault",
}

var archiveKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the archive encryption key pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.OpArchive)
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		if err := a.SetupKeys(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Archive keys generated.")
		return nil
	},
}

var archivePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload a snapshot of the store now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), app.OpArchive)
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.PushArchive(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Archived store at version %d\n", version)
		return nil
	},
}

var archivePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the archived store snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		a, err := newApp(cmd.Context(), app.OpArchive)
		if err != nil {
			return err
		}
		defer a.Close()

		var pass string
		if a.Config().Archive.Encrypt {
			if pass, err = readPassphrase("Passphrase: "); err != nil {
				return err
			}
		}

		version, err := a.PullArchive(cmd.Context(), out, pass)
		if err != nil {
			return err
		}
		fmt.Printf("Restored version %d to %s\n", version, out)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// archive subcommands
	archiveCmd.AddCommand(archiveKeysCmd)
	archiveCmd.AddCommand(archivePushCmd)
	archiveCmd.AddCommand(archivePullCmd)
	archivePullCmd.Flags().StringP("out", "o", "fsv-restored.db", "File to write the snapshot to")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("format", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().String("as-of", "", `Point in time, e.g. "2024-03-01", "2 days ago" (default now)`)
	treeCmd.Flags().String("format", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	historyCmd.Flags().String("format", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().String("cron", "", "Cron spec (default from config)")
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("debounce", 0, "Quiet period before a sync (default from config)")
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(archiveCmd)
}
