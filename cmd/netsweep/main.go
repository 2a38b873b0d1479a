// Package main provides the CLI entry point for netsweep, a parameter
// sweep harness for the network benchmark server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/weiihann/netsweep/harness"
	"github.com/weiihann/netsweep/report"
	"github.com/weiihann/netsweep/sweep"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger, level, afero.NewOsFs())
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("netsweep failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar, fs afero.Fs) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "netsweep",
		Short: "Parameter sweep harness for the network benchmark server",
		Long: `Netsweep runs the benchmark server once for every combination of
delay mode, packet size, connection count, pipeline depth, receive buffer
and thread count, collects each run's log and reports the throughput.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log server output and debug details")

	root.AddCommand(
		newRunCmd(logger, fs),
		newListCmd(fs),
		newSpaceCmd(),
	)

	return root
}

func newRunCmd(logger *slog.Logger, fs afero.Fs) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark server across the configuration space",
		Long: `Enumerate every configuration, run the server for each one,
kill it after the run interval and report the throughput parsed from its
log. Runs are strictly sequential.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), logger, fs, cmd.OutOrStdout(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.server, "server", harness.DefaultServer,
		"Path to the benchmark server binary")
	flags.StringVar(&cfg.client, "client", "",
		"Path to the benchmark client binary (default: no client)")
	flags.StringVar(&cfg.url, "url", "",
		"Listen/connect URL passed to server and client (default: theirs)")
	flags.StringVar(&cfg.spacePath, "space", "",
		"TOML file declaring the configuration space (default: built-in)")
	flags.StringVar(&cfg.logDir, "log-dir", "log",
		"Base directory for per-run logs")
	flags.DurationVar(&cfg.warmUp, "warmup", harness.DefaultWarmUp,
		"Delay between starting the server and starting the client")
	flags.DurationVar(&cfg.runFor, "duration", harness.DefaultRunFor,
		"Delay between starting the client and killing the server")
	flags.StringVar(&cfg.wrap, "wrap", "",
		`Command prefix for server and client (e.g. "taskset -c 0-3")`)
	flags.StringVar(&cfg.buildDir, "build-dir", "",
		"Run make in this directory before the sweep")
	flags.StringVar(&cfg.buildTarget, "build-target", "bmserver.t",
		"Make target that produces the server binary")
	flags.BoolVar(&cfg.compressLogs, "compress-logs", false,
		"Store each run's log zstd-compressed")
	flags.BoolVar(&cfg.outputJSON, "json", false,
		"Output results as JSON instead of table")

	return cmd
}

func newListCmd(fs afero.Fs) *cobra.Command {
	var spacePath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every configuration without running anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			space, err := loadSpace(fs, spacePath)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, rec := range sweep.Enumerate(space) {
				fmt.Fprintf(w, "%4d %s\n", rec.Index, rec.Key())
			}

			fmt.Fprintf(w, "total: %d\n", space.Size())

			return nil
		},
	}

	cmd.Flags().StringVar(&spacePath, "space", "",
		"TOML file declaring the configuration space (default: built-in)")

	return cmd
}

func newSpaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "space",
		Short: "Print the built-in configuration space as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sweep.Default().Encode(cmd.OutOrStdout())
		},
	}
}

type runConfig struct {
	server       string
	client       string
	url          string
	spacePath    string
	logDir       string
	warmUp       time.Duration
	runFor       time.Duration
	wrap         string
	buildDir     string
	buildTarget  string
	compressLogs bool
	outputJSON   bool
}

func loadSpace(fs afero.Fs, path string) (sweep.Space, error) {
	if path == "" {
		return sweep.Default(), nil
	}

	return sweep.Load(fs, path)
}

func runSweep(
	ctx context.Context,
	logger *slog.Logger,
	fs afero.Fs,
	out io.Writer,
	cfg runConfig,
) error {
	// Step 1: Load the configuration space.
	space, err := loadSpace(fs, cfg.spacePath)
	if err != nil {
		return fmt.Errorf("load space: %w", err)
	}

	if err := harness.CheckSpace(space, cfg.client != ""); err != nil {
		return fmt.Errorf("check space: %w", err)
	}

	// Step 2: Build and resolve the server binary.
	serverPath := cfg.server

	if cfg.buildDir != "" {
		serverPath, err = harness.Build(ctx, logger, cfg.buildDir, cfg.buildTarget)
		if err != nil {
			return err
		}
	}

	if resolved, err := harness.ResolveServer(serverPath); err == nil {
		serverPath = resolved
	} else {
		logger.WarnContext(ctx, "server binary not found, runs will have no result",
			slog.String("server", serverPath),
			slog.String("error", err.Error()),
		)
	}

	// Step 3: Prepare the driver.
	store := harness.NewLogStore(fs, cfg.logDir)
	store.Compress = cfg.compressLogs

	wrap := strings.Fields(cfg.wrap)

	driver := harness.NewDriver(serverPath, store, logger)
	driver.URL = cfg.url
	driver.Wrap = wrap
	driver.WarmUp = cfg.warmUp
	driver.RunFor = cfg.runFor

	if cfg.client != "" {
		driver.Client = &harness.ExecClient{
			Path:   cfg.client,
			URL:    cfg.url,
			Wrap:   wrap,
			Store:  store,
			Logger: logger,
		}
	}

	logger.InfoContext(ctx, "starting sweep",
		slog.Any("params", space.Names()),
		slog.Int("configurations", space.Size()),
		slog.String("server", serverPath),
		slog.String("log_dir", store.Dir),
		slog.Duration("per_run", cfg.warmUp+cfg.runFor),
	)

	// Step 4: Run every configuration sequentially.
	results, err := sweep.Walk(ctx, space, driver.RunRecord)
	if err != nil {
		return fmt.Errorf("sweep aborted after %d of %d: %w",
			len(results), space.Size(), err)
	}

	// Step 5: Generate report.
	if cfg.outputJSON {
		if err := report.GenerateJSON(out, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	} else {
		if err := report.Generate(out, space, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	logger.InfoContext(ctx, "sweep complete",
		slog.Int("result_count", len(results)),
	)

	return nil
}
