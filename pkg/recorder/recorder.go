package recorder

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zeverrelay/pkg/config"
	"github.com/raterudder/zeverrelay/pkg/log"
	"github.com/raterudder/zeverrelay/pkg/types"
)

// PathFor returns the log file used for the named system.
func PathFor(dir, systemName string) string {
	return filepath.Join(dir, systemName+" database.csv")
}

// Recorder appends readings to a CSV file.
type Recorder struct {
	path string

	mu sync.Mutex
}

// New returns a Recorder writing to path. Nothing is touched on disk until
// Ensure or Record is called.
func New(path string) *Recorder {
	return &Recorder{path: path}
}

// Path returns the file the recorder writes to.
func (r *Recorder) Path() string {
	return r.path
}

// Ensure creates the file with its header row if it doesn't exist yet. It
// reports whether the file was created.
func (r *Recorder) Ensure(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensure()
}

func (r *Recorder) ensure() (bool, error) {
	if _, err := os.Stat(r.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", r.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}
	// O_EXCL so a concurrently created file never gets a second header
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", r.path, err)
	}
	if err := writeRow(f, types.ReadingHeader); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", r.path, err)
	}
	return true, nil
}

// Record appends the reading. Failures are logged and reported as false.
func (r *Recorder) Record(ctx context.Context, reading types.Reading) bool {
	if err := r.append(reading); err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"error logging to local database",
			slog.String("path", r.path),
			slog.Any("error", err),
		)
		return false
	}
	log.Ctx(ctx).InfoContext(ctx, "data logged to local database", slog.String("path", r.path))
	return true
}

func (r *Recorder) append(reading types.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.ensure(); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", r.path, err)
	}
	if err := writeRow(f, reading.Row()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", r.path, err)
	}
	return nil
}

func writeRow(f *os.File, row []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Configured registers the --db-dir flag and returns a function that resolves
// the directory against the config file once flags are parsed.
func Configured(cfg *config.File) func() string {
	dir := lflag.String("db-dir", "", "Directory the local CSV database is written to (default \".\")")

	var flagDir string
	lflag.Do(func() {
		flagDir = *dir
	})

	return func() string {
		if flagDir != "" {
			return flagDir
		}
		if cfg != nil && cfg.DBDir != "" {
			return cfg.DBDir
		}
		return "."
	}
}
