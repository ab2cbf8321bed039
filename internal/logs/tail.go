package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"evalpanel/internal/logging"
)

const (
	scanBufferSize = 64 * 1024
	maxLineSize    = 1024 * 1024
	followInterval = 250 * time.Millisecond
)

// Options selects which lines Tail and Follow return.
type Options struct {
	Lines int
	JobID string
}

// Result carries the selected lines and the byte offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// JobMatcher reports whether a line carries the given job id in either log
// format. An empty id matches everything.
func JobMatcher(jobID string) func(string) bool {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return func(string) bool { return true }
	}
	console := logging.FieldJobID + "=" + jobID
	structured := `"` + logging.FieldJobID + `":"` + jobID + `"`
	return func(line string) bool {
		return strings.Contains(line, console) || strings.Contains(line, structured)
	}
}

// Tail returns the last opts.Lines matching lines of path. A missing file
// yields an empty result.
func Tail(path string, opts Options) (Result, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return Result{}, err
	}
	defer file.Close()

	limit := opts.Lines
	if limit <= 0 {
		limit = 50
	}
	match := JobMatcher(opts.JobID)
	ring := make([]string, 0, limit)
	offset, err := scan(file, func(line string) {
		if !match(line) {
			return
		}
		if len(ring) == limit {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, line)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Lines: ring, Offset: offset}, nil
}

// Since returns the matching lines written after offset. An offset past the
// end of the file, as after rotation, restarts from the beginning.
func Since(path string, offset int64, opts Options) (Result, error) {
	file, err := open(path)
	if err != nil || file == nil {
		return Result{Offset: 0}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{Offset: offset}, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	match := JobMatcher(opts.JobID)
	var lines []string
	end, err := scan(file, func(line string) {
		if match(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return Result{Offset: offset}, err
	}
	return Result{Lines: lines, Offset: end}, nil
}

// Follow emits lines appended after offset until ctx ends.
func Follow(ctx context.Context, path string, offset int64, opts Options, emit func(string)) error {
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		result, err := Since(path, offset, opts)
		if err != nil {
			return err
		}
		for _, line := range result.Lines {
			emit(line)
		}
		offset = result.Offset

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

// scan feeds every complete line to fn and returns the offset just past the
// last one. A trailing partial line is left for the next read.
func scan(file *os.File, fn func(string)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, scanBufferSize)
	offset := start
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if len(line) > maxLineSize {
			line = line[:maxLineSize]
		}
		fn(strings.TrimRight(line, "\r\n"))
	}
}
