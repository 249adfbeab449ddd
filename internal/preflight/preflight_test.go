package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"metaprop/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDiskSpace("disk", dir, 1); !result.Passed {
		t.Fatalf("expected pass with tiny minimum, got: %s", result.Detail)
	}
	result := CheckDiskSpace("disk", dir, 1<<62)
	if result.Passed {
		t.Fatal("expected failure for absurd minimum")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("expected shortfall detail, got %q", result.Detail)
	}
}

func TestCheckPostgres_MissingDSN(t *testing.T) {
	if result := CheckPostgres(context.Background(), " "); result.Passed {
		t.Fatal("expected failure for missing dsn")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_SQLiteConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LockFileDir = cfg.Paths.DataDir

	results := RunAll(context.Background(), &cfg)
	// data dir, log dir, disk space
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %s", Summary(results))
	}
}

func TestRunAll_ReportsMissingDirectories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LockFileDir = cfg.Paths.DataDir

	results := RunAll(context.Background(), &cfg)
	failed := Failed(results)
	if len(failed) == 0 || failed[0] != "Data directory" {
		t.Fatalf("expected data directory failure, got %v", failed)
	}
	if !strings.Contains(Summary(results), "does not exist") {
		t.Fatalf("unexpected summary %q", Summary(results))
	}
}
