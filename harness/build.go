package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/weiihann/netsweep/sweep"
)

// Parameter names understood by the benchmark server and client.
const (
	ParamNoDelay     = "no_delay"
	ParamPackageSize = "package_size"
	ParamConn        = "conn"
	ParamPipeline    = "pipeline"
	ParamRecvBuffer  = "recv_buffer"
	ParamThreads     = "threads"
)

// DefaultServer is the server path relative to the statistics directory
// of a source checkout.
const DefaultServer = "../test/bmserver.t"

// CheckSpace verifies that space declares everything the server needs.
// With withClient set, the client's parameters are required as well.
func CheckSpace(space sweep.Space, withClient bool) error {
	type requirement struct {
		name string
		kind sweep.Kind
	}

	required := []requirement{
		{ParamPackageSize, sweep.KindInt},
		{ParamNoDelay, sweep.KindBool},
		{ParamRecvBuffer, sweep.KindInt},
		{ParamThreads, sweep.KindInt},
	}

	if withClient {
		required = append(required,
			requirement{ParamConn, sweep.KindInt},
			requirement{ParamPipeline, sweep.KindInt},
		)
	}

	for _, r := range required {
		if err := space.Require(r.name, r.kind); err != nil {
			return err
		}
	}

	return nil
}

// ServerArgs builds the server argv:
// package_size no_delay recv_buffer threads [url].
func ServerArgs(rec sweep.Record, url string) ([]string, error) {
	packageSize, err := rec.Int(ParamPackageSize)
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
		sweep.FormatValue(noDelay),
		sweep.FormatValue(recvBuffer),
		sweep.FormatValue(threads),
	}

	if url != "" {
		args = append(args, url)
	}

	return args, nil
}

// ResolveServer returns the absolute path of the server binary and
// checks that it exists.
func ResolveServer(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("server binary: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("server binary %s is a directory", abs)
	}

	return abs, nil
}

// Build runs make for target in dir and returns the path of the built
// binary, which is expected at dir/target.
func Build(
	ctx context.Context,
	logger *slog.Logger,
	dir string,
	target string,
) (string, error) {
	binPath := filepath.Join(dir, target)

	logger.InfoContext(ctx, "building server",
		slog.String("dir", dir),
		slog.String("target", target),
	)

	cmd := exec.CommandContext(ctx, "make", target)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build %s: %w", target, err)
	}

	if _, err := os.Stat(binPath); err != nil {
		return "", fmt.Errorf(
			"build %s: binary not found at %s", target, binPath,
		)
	}

	logger.InfoContext(ctx, "server built",
		slog.String("binary", binPath),
	)

	return binPath, nil
}

// CommandConfig holds the resolved command and the arguments that
// precede the benchmark's own.
type CommandConfig struct {
	Binary    string
	ExtraArgs []string
}

// WrapCommand returns the exec configuration for running binPath under
// an optional wrapper such as "taskset -c 0-3" or "numactl -N 0".
func WrapCommand(wrap []string, binPath string) CommandConfig {
	if len(wrap) == 0 {
		return CommandConfig{Binary: binPath}
	}

	extra := make([]string, 0, len(wrap))
	extra = append(extra, wrap[1:]...)
	extra = append(extra, binPath)

	return CommandConfig{
		Binary:    wrap[0],
		ExtraArgs: extra,
	}
}
