package sink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFileSink_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	s, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Output directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("Output path is not a directory")
	}

	// Idempotent.
	if _, err := NewFileSink(dir); err != nil {
		t.Errorf("Second NewFileSink failed: %v", err)
	}
}

func TestFileSink_WriteAndOverwrite(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	ctx := context.Background()

	if err := s.Write(ctx, "E1_in-latest.png", []byte("first")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Write(ctx, "E1_in-latest.png", []byte("second")); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	got, err := os.ReadFile(s.Location("E1_in-latest.png"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Content = %q, want %q", got, "second")
	}

	info, err := os.Stat(s.Location("E1_in-latest.png"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("Mode = %o, want 644", perm)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected exactly one file (no temp leftovers), got %v", names)
	}
}

func TestFileSink_RejectsInvalidNames(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	for _, name := range []string{"", ".", "..", "../escape.png", "a/b.png", `a\b.png`} {
		err := s.Write(context.Background(), name, []byte("x"))
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("Write(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestFileSink_CancelledContext(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Write(ctx, "x.png", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Write error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(s.Location("x.png")); !os.IsNotExist(err) {
		t.Error("No file should be written with a cancelled context")
	}
}

func TestBlobSink_Mem(t *testing.T) {
	ctx := context.Background()

	s, err := OpenBlob(ctx, "mem://")
	if err != nil {
		t.Fatalf("OpenBlob failed: %v", err)
	}
	defer s.Close()

	data := []byte{0x89, 'P', 'N', 'G'}
	if err := s.Write(ctx, "E1_2024-01-01_in.png", data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Bucket().ReadAll(ctx, "E1_2024-01-01_in.png")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Content = %v, want %v", got, data)
	}

	attrs, err := s.Bucket().Attributes(ctx, "E1_2024-01-01_in.png")
	if err != nil {
		t.Fatalf("Attributes failed: %v", err)
	}
	if attrs.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", attrs.ContentType)
	}

	if err := s.Write(ctx, "../x.png", data); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Write(../x.png) error = %v, want ErrInvalidName", err)
	}
}

func TestBlobSink_Location(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"mem://", "mem://a.png"},
		{"mem://images/", "mem://images/a.png"},
		{"file:///srv/out", "file:///srv/out/a.png"},
		{"file:///srv/out//", "file:///srv/out/a.png"},
		{"file:///", "file:///a.png"},
		{"s3://bucket?region=eu-west-1", "s3://bucket/a.png?region=eu-west-1"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			s := NewBlobSink(nil, tt.url)
			if got := s.Location("a.png"); got != tt.expected {
				t.Errorf("Location() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFileSink_ChmodFailureKeepsWrite(t *testing.T) {
	orig := chmod
	chmod = func(string, os.FileMode) error { return errors.New("operation not permitted") }
	t.Cleanup(func() { chmod = orig })

	s, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink failed: %v", err)
	}
	var logs bytes.Buffer
	s.logger = zerolog.New(&logs)

	if err := s.Write(context.Background(), "E1_in-latest.png", []byte("png")); err != nil {
		t.Fatalf("Write failed on chmod error: %v", err)
	}

	got, err := os.ReadFile(s.Location("E1_in-latest.png"))
	if err != nil || string(got) != "png" {
		t.Errorf("Content = %q, %v", got, err)
	}
	if !strings.Contains(logs.String(), "Failed to set artifact permissions") {
		t.Errorf("Missing warning, logs: %s", logs.String())
	}
}

func TestOpen_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("plain path is a directory", func(t *testing.T) {
		s, err := Open(ctx, filepath.Join(t.TempDir(), "out"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*FileSink); !ok {
			t.Errorf("Open returned %T, want *FileSink", s)
		}
	})

	t.Run("file url is a blob bucket", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bucket")
		s, err := Open(ctx, "file://"+filepath.ToSlash(dir))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if _, ok := s.(*BlobSink); !ok {
			t.Fatalf("Open returned %T, want *BlobSink", s)
		}

		if err := s.Write(ctx, "E1_in-latest.jpg", []byte("jpeg")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		got, err := os.ReadFile(filepath.Join(dir, "E1_in-latest.jpg"))
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if string(got) != "jpeg" {
			t.Errorf("Content = %q, want jpeg", got)
		}
		if loc := s.Location("E1_in-latest.jpg"); !strings.HasSuffix(loc, "/bucket/E1_in-latest.jpg") {
			t.Errorf("Location = %q", loc)
		}
	})

	t.Run("empty target", func(t *testing.T) {
		if _, err := Open(ctx, ""); err == nil {
			t.Error("Expected error for empty target")
		}
	})
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.png":     "image/png",
		"a.jpg":     "image/jpeg",
		"a.unknown": "application/octet-stream",
		"noext":     "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%q) = %q, want %q", name, got, want)
		}
	}
}
