package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/snapfetch/pkg/logging"
)

// chmod is replaced in tests.
var chmod = os.Chmod

// FileSink writes artifacts into a local directory.
type FileSink struct {
	dir    string
	logger zerolog.Logger
}

// NewFileSink creates dir (recursively, idempotent) and returns a sink for it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &FileSink{dir: dir, logger: logging.NewLogger("sink")}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Write stores data at dir/name through a temporary file and rename. On
// failure the previous file, if any, is left as it was.
func (s *FileSink) Write(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := s.Location(name)
	_, statErr := os.Stat(dest)
	existed := statErr == nil

	if err := atomic.WriteFile(dest, bytes.NewReader(data)); err != nil {
		writeErrors.WithLabelValues("file").Inc()
		return fmt.Errorf("write %s: %w", dest, err)
	}

	// New files come out of the temp file as 0600; artifacts are published.
	// The content is already in place, so a failed chmod is only reported.
	if !existed {
		if err := chmod(dest, 0o644); err != nil {
			s.logger.Warn().Err(err).Str("path", dest).Msg("Failed to set artifact permissions")
		}
	}

	bytesWritten.WithLabelValues("file").Add(float64(len(data)))
	return nil
}

// Location returns the file path for name.
func (s *FileSink) Location(name string) string {
	return filepath.Join(s.dir, name)
}

// Close is a no-op for directories.
func (s *FileSink) Close() error {
	return nil
}
