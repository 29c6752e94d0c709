package sink

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// BlobSink writes artifacts as objects in a gocloud.dev bucket.
type BlobSink struct {
	bucket *blob.Bucket
	url    string
}

// OpenBlob opens the bucket at bucketURL. For file:// URLs the directory is
// created first.
func OpenBlob(ctx context.Context, bucketURL string) (*BlobSink, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket url: %w", err)
	}
	if u.Scheme == "file" {
		if err := os.MkdirAll(u.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}

	return &BlobSink{bucket: bucket, url: bucketURL}, nil
}

// NewBlobSink wraps an already opened bucket.
func NewBlobSink(bucket *blob.Bucket, bucketURL string) *BlobSink {
	return &BlobSink{bucket: bucket, url: bucketURL}
}

// Write stores data as the object name. The object is only replaced when the
// writer commits.
func (s *BlobSink) Write(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	opts := &blob.WriterOptions{ContentType: contentType(name)}
	if err := s.bucket.WriteAll(ctx, name, data, opts); err != nil {
		writeErrors.WithLabelValues("blob").Inc()
		return fmt.Errorf("write object %s: %w", name, err)
	}

	bytesWritten.WithLabelValues("blob").Add(float64(len(data)))
	return nil
}

// Location returns the object URL for name.
func (s *BlobSink) Location(name string) string {
	base := s.url
	query := ""
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base, query = base[:i], base[i:]
	}
	scheme, rest, _ := strings.Cut(base, "://")
	trimmed := strings.TrimRight(rest, "/")
	switch {
	case trimmed != "":
		return scheme + "://" + trimmed + "/" + name + query
	case rest != "":
		// Root path, as in file:///.
		return scheme + ":///" + name + query
	default:
		return scheme + "://" + name + query
	}
}

// Bucket exposes the underlying bucket.
func (s *BlobSink) Bucket() *blob.Bucket {
	return s.bucket
}

// Close closes the bucket.
func (s *BlobSink) Close() error {
	return s.bucket.Close()
}
