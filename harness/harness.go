package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/afero"
	"github.com/weiihann/netsweep/sweep"
)

// Default timings for one run.
const (
	DefaultWarmUp = 500 * time.Millisecond
	DefaultRunFor = 2 * time.Second
)

// Output is what one server run left behind.
type Output struct {
	LogPath string
	Lines   []string
	// StartErr is set when the server could not be launched. The run
	// still completes, with whatever the log holds.
	StartErr error
	Elapsed  time.Duration
}

// Driver runs the benchmark server once per configuration: start it,
// wait for warm-up, start the client, wait for the run, kill the server
// and collect its log.
type Driver struct {
	ServerPath string
	URL        string
	Wrap       []string
	WarmUp     time.Duration
	RunFor     time.Duration
	Client     ClientLauncher
	Store      *LogStore
	Logger     *slog.Logger
}

// NewDriver creates a Driver with the default timings and no client.
func NewDriver(serverPath string, store *LogStore, logger *slog.Logger) *Driver {
	return &Driver{
		ServerPath: serverPath,
		WarmUp:     DefaultWarmUp,
		RunFor:     DefaultRunFor,
		Client:     NopClient{},
		Store:      store,
		Logger:     logger,
	}
}

// Run drives one server run for rec. Only configuration and log
// collection failures are returned as errors.
func (d *Driver) Run(ctx context.Context, rec sweep.Record) (*Output, error) {
	logger := d.Logger.With(
		slog.Int("index", rec.Index),
		slog.String("config", rec.Key()),
	)

	args, err := ServerArgs(rec, d.URL)
	if err != nil {
		return nil, fmt.Errorf("server args: %w", err)
	}

	logPath := d.Store.Path(rec)

	logFile, err := d.Store.Create(logPath)
	if err != nil {
		return nil, err
	}

	cmdCfg := WrapCommand(d.Wrap, d.ServerPath)
	cmd := exec.CommandContext(ctx, cmdCfg.Binary, append(cmdCfg.ExtraArgs, args...)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.WaitDelay = time.Second

	out := &Output{LogPath: logPath}

	logger.Info("starting server",
		slog.String("binary", d.ServerPath),
		slog.Any("args", args),
		slog.String("log", logPath),
	)

	wallStart := time.Now()

	if err := cmd.Start(); err != nil {
		out.StartErr = err
		cmd = nil

		logger.Warn("server failed to start",
			slog.String("error", err.Error()),
		)
	}

	var client Stopper

	stop := func() {
		d.kill(logger, cmd)

		if client != nil {
			if err := client.Stop(); err != nil {
				logger.Warn("failed to stop client",
					slog.String("error", err.Error()),
				)
			}
		}

		logFile.Close()
	}

	if err := sleep(ctx, d.WarmUp); err != nil {
		stop()
		return nil, err
	}

	client, err = d.client().Start(ctx, rec, ClientPath(logPath))
	if err != nil {
		client = nil

		logger.Warn("client failed to start",
			slog.String("error", err.Error()),
		)
	}

	if err := sleep(ctx, d.RunFor); err != nil {
		stop()
		return nil, err
	}

	stop()

	lines, err := d.Store.ReadLines(logPath)
	if err != nil {
		return nil, fmt.Errorf("collect log: %w", err)
	}

	for _, line := range lines {
		logger.Debug("server output", slog.String("line", line))
	}

	out.Lines = lines
	out.Elapsed = time.Since(wallStart)

	logger.Info("server finished",
		slog.Duration("wall_time", out.Elapsed),
		slog.Int("lines", len(lines)),
	)

	return out, nil
}

// RunRecord runs rec, parses its throughput and archives its log. It
// satisfies sweep.RunFunc.
func (d *Driver) RunRecord(ctx context.Context, rec sweep.Record) (sweep.Record, error) {
	out, err := d.Run(ctx, rec)
	if err != nil {
		return rec, err
	}

	rec.Result.Throughput, rec.Result.OK = ParseThroughput(out.Lines)
	if !rec.Result.OK {
		d.Logger.Info("no throughput in server log",
			slog.Int("index", rec.Index),
			slog.String("log", out.LogPath),
		)
	}

	rec.LogPath = d.archive(out.LogPath)

	if clientLog := ClientPath(out.LogPath); d.exists(clientLog) {
		d.archive(clientLog)
	}

	return rec, nil
}

func (d *Driver) client() ClientLauncher {
	if d.Client == nil {
		return NopClient{}
	}

	return d.Client
}

func (d *Driver) archive(path string) string {
	archived, err := d.Store.Archive(path)
	if err != nil {
		d.Logger.Warn("failed to archive log",
			slog.String("log", path),
			slog.String("error", err.Error()),
		)
	}

	return archived
}

func (d *Driver) exists(path string) bool {
	ok, err := afero.Exists(d.Store.Fs, path)

	return err == nil && ok
}

// kill terminates the server unconditionally and reaps it.
func (d *Driver) kill(logger *slog.Logger, cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn("failed to kill server",
			slog.String("error", err.Error()),
		)
	}

	_ = cmd.Wait()

	logger.Debug("server killed")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
