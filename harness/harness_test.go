package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/weiihann/netsweep/sweep"
)

const statusHeader = " index |  conn  |   s_send   | s_send_err |   s_recv   " +
	"|   c_send   | c_send_err |   c_recv   |   OPS   | max_pack"

// statusRow formats a row the way the server's status printer does.
func statusRow(index, conn, recv int) string {
	return fmt.Sprintf(
		"%6d | %6d | %7d MB | %7d MB | %7d MB | %7d MB | %7d MB | %7d MB |%8d | %d",
		index, conn, 0, 0, recv, 0, 0, 0, 1000, 64,
	)
}

func testRecord(index int) sweep.Record {
	return sweep.Record{
		Index: index,
		Settings: []sweep.Setting{
			{Name: ParamNoDelay, Value: true},
			{Name: ParamPackageSize, Value: 64},
			{Name: ParamConn, Value: 10},
			{Name: ParamPipeline, Value: 100},
			{Name: ParamRecvBuffer, Value: 16},
			{Name: ParamThreads, Value: 2},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "server.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	return path
}

func newTestDriver(t *testing.T, server string) *Driver {
	t.Helper()

	store := NewLogStore(afero.NewOsFs(), t.TempDir())
	d := NewDriver(server, store, discardLogger())
	d.WarmUp = 100 * time.Millisecond
	d.RunFor = 200 * time.Millisecond

	return d
}

func TestParseThroughput(t *testing.T) {
	lines := []string{
		"server listening",
		"------------------------------------------------",
		"------------- start PackageSize=64 Bytes, NoDelay=1 -------------",
		statusHeader,
		statusRow(1, 0, 0),
		statusRow(2, 10, 100),
		"debug: accepted connection",
		statusRow(3, 10, 200),
	}

	got, ok := ParseThroughput(lines)
	if !ok {
		t.Fatal("expected a throughput value")
	}

	if got != 150 {
		t.Errorf("throughput = %v, want 150", got)
	}
}

func TestParseThroughputNoResult(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{name: "empty", lines: nil},
		{name: "no header", lines: []string{"hello", statusRow(1, 10, 100)}},
		{name: "no connections", lines: []string{statusHeader, statusRow(1, 0, 5)}},
		{name: "garbage rows", lines: []string{statusHeader, "a | b | c"}},
	}

	for _, tt := range tests {
		got, ok := ParseThroughput(tt.lines)
		if ok {
			t.Errorf("%s: got %v, want no result", tt.name, got)
		}
	}
}

func TestServerArgs(t *testing.T) {
	args, err := ServerArgs(testRecord(0), "")
	if err != nil {
		t.Fatalf("ServerArgs failed: %v", err)
	}

	if got := strings.Join(args, " "); got != "64 1 16 2" {
		t.Errorf("args = %q, want %q", got, "64 1 16 2")
	}

	args, err = ServerArgs(testRecord(0), "tcp://127.0.0.1:3050")
	if err != nil {
		t.Fatalf("ServerArgs failed: %v", err)
	}

	if args[len(args)-1] != "tcp://127.0.0.1:3050" {
		t.Errorf("url not appended: %v", args)
	}
}

func TestServerArgsMissingParam(t *testing.T) {
	rec := sweep.Record{Settings: []sweep.Setting{{Name: ParamPackageSize, Value: 64}}}

	_, err := ServerArgs(rec, "")
	if !errors.Is(err, sweep.ErrUnknownParam) {
		t.Errorf("err = %v, want ErrUnknownParam", err)
	}
}

func TestClientArgs(t *testing.T) {
	args, err := ClientArgs(testRecord(0), "tcp://h:1")
	if err != nil {
		t.Fatalf("ClientArgs failed: %v", err)
	}

	if got := strings.Join(args, " "); got != "64 10 100 1 16 2 tcp://h:1" {
		t.Errorf("args = %q", got)
	}
}

func TestCheckSpace(t *testing.T) {
	if err := CheckSpace(sweep.Default(), true); err != nil {
		t.Errorf("default space rejected: %v", err)
	}

	partial := sweep.Space{
		{Name: ParamPackageSize, Values: []any{64}},
		{Name: ParamNoDelay, Values: []any{false}},
		{Name: ParamRecvBuffer, Values: []any{16}},
		{Name: ParamThreads, Values: []any{1}},
	}

	if err := CheckSpace(partial, false); err != nil {
		t.Errorf("server-only space rejected: %v", err)
	}

	if err := CheckSpace(partial, true); !errors.Is(err, sweep.ErrUnknownParam) {
		t.Errorf("err = %v, want ErrUnknownParam", err)
	}
}

func TestWrapCommand(t *testing.T) {
	cfg := WrapCommand(nil, "/bin/server")
	if cfg.Binary != "/bin/server" || len(cfg.ExtraArgs) != 0 {
		t.Errorf("unwrapped = %+v", cfg)
	}

	cfg = WrapCommand([]string{"taskset", "-c", "0-3"}, "/bin/server")
	if cfg.Binary != "taskset" {
		t.Errorf("binary = %q, want taskset", cfg.Binary)
	}

	if got := strings.Join(cfg.ExtraArgs, " "); got != "-c 0-3 /bin/server" {
		t.Errorf("extra args = %q", got)
	}
}

func TestResolveServer(t *testing.T) {
	dir := t.TempDir()

	if _, err := ResolveServer(dir); err == nil {
		t.Error("expected error for directory")
	}

	if _, err := ResolveServer(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing binary")
	}

	path := writeScript(t, "exit 0\n")

	got, err := ResolveServer(path)
	if err != nil {
		t.Fatalf("ResolveServer failed: %v", err)
	}

	if !filepath.IsAbs(got) {
		t.Errorf("path %q is not absolute", got)
	}
}

func TestDriverRun(t *testing.T) {
	server := writeScript(t, `echo "args: $@"
echo "`+statusHeader+`"
echo "`+statusRow(1, 10, 120)+`"
echo "to stderr" >&2
exec sleep 30
`)

	d := newTestDriver(t, server)

	start := time.Now()

	rec, err := d.RunRecord(context.Background(), testRecord(7))
	if err != nil {
		t.Fatalf("RunRecord failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("run took %v; server was not killed", elapsed)
	}

	if !rec.Result.OK || rec.Result.Throughput != 120 {
		t.Errorf("result = %+v, want 120", rec.Result)
	}

	lines, err := d.Store.ReadLines(rec.LogPath)
	if err != nil {
		t.Fatalf("read archived log: %v", err)
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "args: 64 1 16 2") {
		t.Errorf("log missing server args:\n%s", joined)
	}

	if !strings.Contains(joined, "to stderr") {
		t.Errorf("log missing stderr output:\n%s", joined)
	}

	if !strings.HasPrefix(filepath.Base(rec.LogPath), "0007-") {
		t.Errorf("log path %q not derived from the record", rec.LogPath)
	}
}

func TestDriverServerNotStarted(t *testing.T) {
	d := newTestDriver(t, filepath.Join(t.TempDir(), "no-such-server"))

	start := time.Now()

	out, err := d.Run(context.Background(), testRecord(0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run took %v, want about warm-up plus run time", elapsed)
	}

	if out.StartErr == nil {
		t.Error("expected StartErr for missing server")
	}

	if len(out.Lines) != 0 {
		t.Errorf("lines = %v, want none", out.Lines)
	}

	if _, ok := ParseThroughput(out.Lines); ok {
		t.Error("expected no result")
	}
}

func TestDriverCancelled(t *testing.T) {
	server := writeScript(t, "exec sleep 30\n")
	d := newTestDriver(t, server)
	d.WarmUp = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()

	_, err := d.Run(ctx, testRecord(0))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancel took %v", elapsed)
	}
}

func TestDriverWithClient(t *testing.T) {
	server := writeScript(t, "exec sleep 30\n")
	clientBin := writeScript(t, `echo "client: $@"
exec sleep 30
`)

	d := newTestDriver(t, server)
	d.Client = &ExecClient{
		Path:   clientBin,
		Store:  d.Store,
		Logger: discardLogger(),
	}

	out, err := d.Run(context.Background(), testRecord(1))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lines, err := d.Store.ReadLines(ClientPath(out.LogPath))
	if err != nil {
		t.Fatalf("read client log: %v", err)
	}

	if len(lines) != 1 || lines[0] != "client: 64 10 100 1 16 2" {
		t.Errorf("client log = %v", lines)
	}
}
