package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Report is the outcome of a successful engine invocation.
type Report struct {
	OutputPath      string
	WallClockMillis int64
}

// Executor runs ffmpeg invocations. Timeout bounds the subprocess wall
// clock; zero means no limit. StderrLimit bounds how much engine output is
// retained for error reporting.
type Executor struct {
	Binary      string
	Timeout     time.Duration
	StderrLimit int
}

const defaultStderrLimit = 64 * 1024

// Run executes the prepared argv. onProgress, when non-nil, receives the
// engine's out_time in seconds as encoding advances; it is advisory only.
// No retry happens here: retry policy belongs to the orchestrator.
func (e *Executor) Run(ctx context.Context, args []string, outputPath string, onProgress func(float64)) (*Report, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("ffmpeg: empty command")
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	binary := args[0]
	rest := args[1:]
	if e.Binary != "" {
		binary = e.Binary
	}
	if onProgress != nil {
		rest = append([]string{"-progress", "pipe:1", "-nostats"}, rest...)
	}

	cmd := exec.CommandContext(ctx, binary, rest...)

	limit := e.StderrLimit
	if limit <= 0 {
		limit = defaultStderrLimit
	}
	stderr := newTailBuffer(limit)
	cmd.Stderr = stderr

	if onProgress != nil {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
		}
		go scanProgress(stdout, onProgress)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	tail := stderr.String()
	if err != nil {
		return nil, classify(ctx, err, tail)
	}
	if hardError(tail) {
		return nil, &ExecError{ExitCode: 0, Stderr: tail}
	}

	return &Report{OutputPath: outputPath, WallClockMillis: elapsed.Milliseconds()}, nil
}

// scanProgress parses the -progress key=value stream. out_time_ms is
// microseconds despite the name.
func scanProgress(r interface{ Read([]byte) (int, error) }, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "out_time_ms=") {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimPrefix(line, "out_time_ms="), 10, 64)
		if err != nil || us < 0 {
			continue
		}
		onProgress(float64(us) / 1e6)
	}
}

// WriteConcatList writes a concat-demuxer list that repeats basePath the
// given number of times, and returns the list file path.
func WriteConcatList(dir, basePath string, repeats int) (string, error) {
	if repeats < 1 {
		return "", fmt.Errorf("ffmpeg: concat repeats must be positive, got %d", repeats)
	}
	var b strings.Builder
	escaped := strings.ReplaceAll(basePath, "'", `'\''`)
	for i := 0; i < repeats; i++ {
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	listPath := filepath.Join(dir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("ffmpeg: write concat list: %w", err)
	}
	return listPath, nil
}

// BuildExtend constructs the stage-two argv: the base loop repeated via the
// concat demuxer with stream copy, trimmed to the target. No re-encode.
func BuildExtend(listPath, outputPath string, targetDuration float64) []string {
	return []string{
		"ffmpeg", "-hide_banner", "-nostdin", "-y", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-t", formatSeconds(targetDuration),
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
}
