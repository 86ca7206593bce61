// v0
// internal/sink/file.go
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// FileSink persists snapshots on local disk. In ModeLatest the file always
// holds the most recent document; in ModeLog every tick appends one JSON line
// {"<timestamp>": {...}}.
type FileSink struct {
	path string
	mode Mode
	log  *slog.Logger

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func NewFileSink(path string, mode Mode, log *slog.Logger) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("file sink requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sink directory: %w", err)
	}
	fs := &FileSink{path: path, mode: mode, log: log.With(slog.String("sink", "file"))}
	if mode == ModeLog {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open sink file: %w", err)
		}
		fs.file = f
		fs.writer = bufio.NewWriter(f)
	}
	fs.log.Info("file_sink_ready", slog.String("path", path), slog.String("mode", string(mode)))
	return fs, nil
}

func (fs *FileSink) Publish(ctx context.Context, at time.Time, snap telemetry.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := Document(snap)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.mode == ModeLog {
		return fs.appendLine(at, doc)
	}
	return fs.replace(doc)
}

func (fs *FileSink) appendLine(at time.Time, doc map[string]ZoneDoc) error {
	if fs.writer == nil {
		return errors.New("file sink closed")
	}
	line, err := json.Marshal(map[string]map[string]ZoneDoc{FormatTimestamp(at): doc})
	if err != nil {
		return err
	}
	if _, err := fs.writer.Write(line); err != nil {
		return err
	}
	if err := fs.writer.WriteByte('\n'); err != nil {
		return err
	}
	return fs.writer.Flush()
}

func (fs *FileSink) replace(doc map[string]ZoneDoc) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("replace sink file: %w", err)
	}
	return nil
}

func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	var errs []error
	if err := fs.writer.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := fs.file.Close(); err != nil {
		errs = append(errs, err)
	}
	fs.file = nil
	fs.writer = nil
	return errors.Join(errs...)
}
