package harness

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/weiihann/netsweep/sweep"
)

// LogStore places each run's output in its own file under a directory
// unique to the sweep, so logs are archived rather than overwritten.
type LogStore struct {
	Fs       afero.Fs
	Dir      string
	Compress bool
}

// NewLogStore returns a store rooted at baseDir/<sweep id>.
func NewLogStore(fs afero.Fs, baseDir string) *LogStore {
	return &LogStore{
		Fs:  fs,
		Dir: filepath.Join(baseDir, uuid.NewString()),
	}
}

// Path returns the server log path for rec.
func (s *LogStore) Path(rec sweep.Record) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%04d-%s.log", rec.Index, rec.Key()))
}

// ClientPath returns the client log path that accompanies a server log.
func ClientPath(serverLog string) string {
	return serverLog[:len(serverLog)-len(filepath.Ext(serverLog))] + ".client.log"
}

// Create truncates or creates the file at path.
func (s *LogStore) Create(path string) (afero.File, error) {
	if err := s.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := s.Fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log %s: %w", path, err)
	}

	return f, nil
}

// ReadLines reads the file at path line by line to EOF.
func (s *LogStore) ReadLines(path string) ([]string, error) {
	f, err := s.Fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	var lines []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("read log %s: %w", path, err)
	}

	return lines, nil
}

// Archive finalises a log once it has been read. With Compress set the
// log is replaced by a zstd-compressed copy and the new path returned.
func (s *LogStore) Archive(path string) (string, error) {
	if !s.Compress {
		return path, nil
	}

	dst := path + ".zst"

	if err := s.compress(path, dst); err != nil {
		_ = s.Fs.Remove(dst)
		return path, err
	}

	if err := s.Fs.Remove(path); err != nil {
		return dst, fmt.Errorf("remove %s: %w", path, err)
	}

	return dst, nil
}

func (s *LogStore) compress(src, dst string) error {
	in, err := s.Fs.Open(src)
	if err != nil {
		return fmt.Errorf("open log %s: %w", src, err)
	}
	defer in.Close()

	out, err := s.Fs.Create(dst)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", dst, err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		return fmt.Errorf("compress %s: %w", src, err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", dst, err)
	}

	return nil
}
