package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// TailOptions controls a Tail call. A negative Offset means "start from the
// last Limit matching entries".
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries matching entries and the offset to resume from.
type TailResult struct {
	Entries []Entry
	Offset  int64
}

const pollInterval = 250 * time.Millisecond

// Tail reads entries from path. A missing file yields an empty result.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{}, fmt.Errorf("log path %q is a directory", path)
	}

	offset := opts.Offset
	if offset > info.Size() {
		// rotated or truncated
		offset = 0
	}

	entries, next, err := readEntries(path, max(offset, 0), opts.Filter)
	if err != nil {
		return TailResult{}, err
	}
	if offset < 0 && opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}
	if offset < 0 && opts.Limit <= 0 {
		entries = nil
	}
	if len(entries) > 0 || !opts.Follow || opts.Wait <= 0 {
		return TailResult{Entries: entries, Offset: next}, nil
	}
	return waitForEntries(ctx, path, next, opts)
}

func readEntries(path string, offset int64, filter Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var entries []Entry
	next := offset
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// partial trailing line is left for the next call
			break
		}
		if err != nil {
			return nil, offset, fmt.Errorf("read log file: %w", err)
		}
		next += int64(len(line))
		if entry, ok := ParseEntry(line); ok && filter.Matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, next, nil
}

func waitForEntries(ctx context.Context, path string, offset int64, opts TailOptions) (TailResult, error) {
	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
		entries, next, err := readEntries(path, offset, opts.Filter)
		if err != nil {
			return TailResult{Offset: offset}, err
		}
		offset = next
		if len(entries) > 0 || time.Now().After(deadline) {
			return TailResult{Entries: entries, Offset: offset}, nil
		}
	}
}
