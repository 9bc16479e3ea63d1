package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrDeadline marks an invocation killed by the wall-clock timeout.
var ErrDeadline = errors.New("transcode timed out")

// ExecError is a hard engine failure: non-zero exit, or an engine-reported
// error on stderr. It carries the retained stderr tail for diagnostics.
type ExecError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	msg := lastStderrLine(e.Stderr)
	if msg == "" {
		msg = "unknown engine error"
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, msg)
}

func classify(ctx context.Context, runErr error, stderrTail string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after bounded run time", ErrDeadline)
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &ExecError{ExitCode: exitErr.ExitCode(), Stderr: stderrTail}
	}
	return fmt.Errorf("ffmpeg: %w", runErr)
}

// hardError reports whether stderr carries an engine-reported failure even
// when the process exited zero.
func hardError(stderr string) bool {
	return strings.Contains(stderr, "Error") || strings.Contains(stderr, "Conversion failed")
}

func lastStderrLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// tailBuffer keeps the last max bytes written. Engine output is unbounded;
// only the tail matters for classification.
type tailBuffer struct {
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.data)
}
