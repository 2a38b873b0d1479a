package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/weiihann/netsweep/sweep"
)

// Stopper ends a running client.
type Stopper interface {
	Stop() error
}

// ClientLauncher starts the load generator for one run. logPath is where
// the client's output belongs.
type ClientLauncher interface {
	Start(ctx context.Context, rec sweep.Record, logPath string) (Stopper, error)
}

// NopClient starts nothing. The server runs without load.
type NopClient struct{}

// Start implements ClientLauncher.
func (NopClient) Start(context.Context, sweep.Record, string) (Stopper, error) {
	return nopStopper{}, nil
}

type nopStopper struct{}

func (nopStopper) Stop() error { return nil }

// ExecClient runs an external benchmark client binary.
type ExecClient struct {
	Path   string
	URL    string
	Wrap   []string
	Store  *LogStore
	Logger *slog.Logger
}

// ClientArgs builds the client argv:
// package_size conn pipeline no_delay recv_buffer threads [url].
func ClientArgs(rec sweep.Record, url string) ([]string, error) {
	packageSize, err := rec.Int(ParamPackageSize)
	if err != nil {
		return nil, err
	}

	conn, err := rec.Int(ParamConn)
	if err != nil {
		return nil, err
	}

	pipeline, err := rec.Int(ParamPipeline)
	if err != nil {
		return nil, err
	}

	noDelay, err := rec.Bool(ParamNoDelay)
	if err != nil {
		return nil, err
	}

	recvBuffer, err := rec.Int(ParamRecvBuffer)
	if err != nil {
		return nil, err
	}

	threads, err := rec.Int(ParamThreads)
	if err != nil {
		return nil, err
	}

	args := []string{
		sweep.FormatValue(packageSize),
		sweep.FormatValue(conn),
		sweep.FormatValue(pipeline),
		sweep.FormatValue(noDelay),
		sweep.FormatValue(recvBuffer),
		sweep.FormatValue(threads),
	}

	if url != "" {
		args = append(args, url)
	}

	return args, nil
}

// Start implements ClientLauncher.
func (c *ExecClient) Start(
	ctx context.Context,
	rec sweep.Record,
	logPath string,
) (Stopper, error) {
	args, err := ClientArgs(rec, c.URL)
	if err != nil {
		return nil, fmt.Errorf("client args: %w", err)
	}

	out, err := c.Store.Create(logPath)
	if err != nil {
		return nil, err
	}

	cmdCfg := WrapCommand(c.Wrap, c.Path)
	cmd := exec.CommandContext(ctx, cmdCfg.Binary, append(cmdCfg.ExtraArgs, args...)...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("start client %s: %w", c.Path, err)
	}

	if c.Logger != nil {
		c.Logger.Debug("client started",
			slog.String("binary", c.Path),
			slog.Any("args", args),
			slog.Int("pid", cmd.Process.Pid),
		)
	}

	return &procStopper{cmd: cmd, out: out}, nil
}

type procStopper struct {
	cmd *exec.Cmd
	out interface{ Close() error }
}

// Stop kills the process and reaps it. The exit status of a killed
// process is not an error.
func (p *procStopper) Stop() error {
	defer p.out.Close()

	killErr := p.cmd.Process.Kill()
	_ = p.cmd.Wait()

	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return fmt.Errorf("kill client: %w", killErr)
	}

	return nil
}
