package preflight

import (
	"context"
	"strings"

	"metaprop/internal/config"
)

// MinFreeBytes is the free space required on the data directory filesystem.
const MinFreeBytes = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.LockFileDir != "" && cfg.Paths.LockFileDir != cfg.Paths.DataDir {
		results = append(results, CheckDirectoryAccess("Lock directory", cfg.Paths.LockFileDir))
	}
	results = append(results, CheckDiskSpace("Data filesystem", cfg.Paths.DataDir, MinFreeBytes))

	if cfg.Queue.Backend == config.QueueBackendPostgres {
		results = append(results, CheckPostgres(ctx, cfg.Queue.PostgresDSN))
	}
	return results
}

// Failed returns the names of failed checks.
func Failed(results []Result) []string {
	var names []string
	for _, r := range results {
		if !r.Passed {
			names = append(names, r.Name)
		}
	}
	return names
}

// Summary renders failed checks as a single line.
func Summary(results []Result) string {
	var parts []string
	for _, r := range results {
		if !r.Passed {
			parts = append(parts, r.Name+": "+r.Detail)
		}
	}
	return strings.Join(parts, "; ")
}
