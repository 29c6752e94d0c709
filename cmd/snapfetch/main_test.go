package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/snapfetch/internal/testutil"
)

// captureOutput redirects stdout and stderr for the duration of the test.
func captureOutput(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr := stdout, stderr
	stdout, stderr = out, errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return out, errOut
}

// clearEnv unsets SNAPFETCH_* variables a developer may have exported.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "SNAPFETCH_") {
			t.Setenv(name, "")
		}
	}
}

func baseArgs(origin *testutil.MockOrigin, outDir string, extra ...string) []string {
	args := []string{
		"--base-url", origin.URL() + "/",
		"--suffixes", "in",
		"--extension", "png",
		"--date", "2024-01-01",
		"--retries", "0",
		"--timeout", "5",
		"--output", outDir,
	}
	return append(args, extra...)
}

func TestRun_Help(t *testing.T) {
	clearEnv(t)
	_, errOut := captureOutput(t)

	if code := run([]string{"--help"}); code != ExitSuccess {
		t.Errorf("exit code = %d, want %d", code, ExitSuccess)
	}
	if !strings.Contains(errOut.String(), "--base-url") {
		t.Error("Usage does not list --base-url")
	}
}

func TestRun_InvalidArgs(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--nope"}},
		{"positional argument", []string{"extra"}},
		{"bad timeout", []string{"--timeout", "soon"}},
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}},
		{"missing base url", []string{"--ids", "E1", "--suffixes", "in"}},
		{"missing suffixes", []string{"--ids", "E1", "--base-url", "http://origin"}},
		{"bad date", []string{"--ids", "E1", "--suffixes", "in", "--base-url", "http://origin", "--date", "2024-1-1"}},
		{"bad zone", []string{"--ids", "E1", "--suffixes", "in", "--base-url", "http://origin", "--time-zone", "Nowhere/City"}},
		{"negative retries", []string{"--ids", "E1", "--suffixes", "in", "--base-url", "http://origin", "--retries", "-1"}},
		{"status without redis", []string{"--status"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := run(tt.args); code != ExitInvalidConfig {
				t.Errorf("exit code = %d, want %d", code, ExitInvalidConfig)
			}
		})
	}
}

func TestRun_MissingIdentifierFile(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	args := baseArgs(origin, t.TempDir(), "--id-file", filepath.Join(t.TempDir(), "missing.txt"))
	if code := run(args); code != ExitIdentifierFile {
		t.Errorf("exit code = %d, want %d", code, ExitIdentifierFile)
	}
	if origin.RequestCount() != 0 {
		t.Errorf("Made %d requests, want 0", origin.RequestCount())
	}
}

func TestRun_Success(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/E1_2024-01-01_in.png", testutil.NewImageResponse([]byte("one")))
	origin.SetResponse("/E2_2024-01-01_in.png", testutil.NewImageResponse([]byte("two")))

	dir := t.TempDir()
	idFile := filepath.Join(dir, "ids.txt")
	if err := os.WriteFile(idFile, []byte("E1\n\nE2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")
	metricsFile := filepath.Join(dir, "snapfetch.prom")

	args := baseArgs(origin, outDir, "--id-file", idFile, "--metrics-file", metricsFile)
	if code := run(args); code != ExitSuccess {
		t.Fatalf("exit code = %d, want %d", code, ExitSuccess)
	}

	for name, want := range map[string]string{
		"E1_in-latest.png":     "one",
		"E1_2024-01-01_in.png": "one",
		"E2_in-latest.png":     "two",
		"E2_2024-01-01_in.png": "two",
	} {
		got, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Errorf("Missing artifact %s: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("Metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "snapfetch_last_run_tasks") {
		t.Error("Metrics file lacks batch gauges")
	}
}

func TestRun_PartialSuccess(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/E1_2024-01-01_in.png", testutil.NewImageResponse([]byte("one")))

	if code := run(baseArgs(origin, t.TempDir(), "--ids", "E1,E2")); code != ExitSuccess {
		t.Errorf("exit code = %d, want %d", code, ExitSuccess)
	}
}

func TestRun_NoSuccesses(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	outDir := t.TempDir()
	if code := run(baseArgs(origin, outDir, "--ids", "E1,E2", "--retries", "1")); code != ExitNoSuccesses {
		t.Errorf("exit code = %d, want %d", code, ExitNoSuccesses)
	}
	if got := origin.RequestCount(); got != 4 {
		t.Errorf("RequestCount = %d, want 4", got)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Output has %d entries, want none", len(entries))
	}
}

func TestRun_Precedence(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/E1_2024-01-01_out.gif", testutil.NewImageResponse([]byte("gif")))

	dir := t.TempDir()
	configFile := filepath.Join(dir, "snapfetch.yaml")
	yaml := "base_url: http://127.0.0.1:1\nsuffixes: [in]\nextension: gif\nretries: 0\ndate: \"2024-01-01\"\n"
	if err := os.WriteFile(configFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	// The file sets an unreachable origin, the environment fixes it, and the
	// flag overrides the file's suffixes.
	t.Setenv("SNAPFETCH_BASE_URL", origin.URL())
	t.Setenv("SNAPFETCH_IDS", "E1")
	t.Setenv("SNAPFETCH_USER_AGENT", "snapfetch-test/1.0")

	outDir := filepath.Join(dir, "out")
	code := run([]string{"--config", configFile, "--suffixes", "out", "--output", outDir})
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, want %d", code, ExitSuccess)
	}

	if _, err := os.Stat(filepath.Join(outDir, "E1_out-latest.gif")); err != nil {
		t.Errorf("Stable artifact missing: %v", err)
	}
	if ua := origin.LastUserAgent(); ua != "snapfetch-test/1.0" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestRun_UnreachableLedgerDoesNotFailBatch(t *testing.T) {
	clearEnv(t)
	captureOutput(t)

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/E1_2024-01-01_in.png", testutil.NewImageResponse([]byte("one")))

	args := baseArgs(origin, t.TempDir(), "--ids", "E1", "--redis-url", "127.0.0.1:1")
	if code := run(args); code != ExitSuccess {
		t.Errorf("exit code = %d, want %d", code, ExitSuccess)
	}
}
