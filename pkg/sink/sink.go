// Package sink stores fetched artifacts under stable and dated names.
//
// A target is either a local directory, written with atomic replace so a
// reader never observes a partial file, or a gocloud.dev blob bucket URL
// (file://, mem://), where each object becomes visible only once its writer
// commits.
package sink

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfetch_sink_bytes_written_total",
		Help: "Total artifact bytes written by sink kind",
	}, []string{"sink"})

	writeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfetch_sink_write_errors_total",
		Help: "Total failed artifact writes by sink kind",
	}, []string{"sink"})
)

// ErrInvalidName is returned for artifact names that would escape the target.
var ErrInvalidName = errors.New("invalid artifact name")

// Sink is a destination for artifacts.
type Sink interface {
	// Write stores data under name, replacing any previous content atomically.
	Write(ctx context.Context, name string, data []byte) error

	// Location describes where name is stored, for logging.
	Location(name string) string

	// Close releases the sink.
	Close() error
}

// Open returns a sink for target. Targets containing "://" are opened as blob
// buckets; anything else is a local directory, created if missing.
func Open(ctx context.Context, target string) (Sink, error) {
	if target == "" {
		return nil, errors.New("sink: empty target")
	}
	if strings.Contains(target, "://") {
		return OpenBlob(ctx, target)
	}
	return NewFileSink(target)
}

// validateName rejects names that are not a single path element.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || path.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// contentType guesses the MIME type from the artifact extension.
func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
