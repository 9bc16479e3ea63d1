package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildExtend(t *testing.T) {
	args := BuildExtend("/tmp/job/concat.txt", "/tmp/job/out.mp4", 3600)

	if argAfter(args, "-f") != "concat" || argAfter(args, "-i") != "/tmp/job/concat.txt" {
		t.Fatalf("concat input wrong: %v", args)
	}
	if argAfter(args, "-c") != "copy" {
		t.Fatal("stage two must stream-copy, not re-encode")
	}
	if argAfter(args, "-t") != "3600" {
		t.Fatalf("trim: got %q", argAfter(args, "-t"))
	}
	if !contains(args, "+faststart") {
		t.Fatal("faststart flag missing")
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "it's base.mp4")

	listPath, err := WriteConcatList(dir, base, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("want 3 entries, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `it'\''s base.mp4`) {
		t.Fatalf("quote not escaped: %q", lines[0])
	}
}

func TestWriteConcatList_RejectsZeroRepeats(t *testing.T) {
	if _, err := WriteConcatList(t.TempDir(), "base.mp4", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	b := newTailBuffer(8)
	b.Write([]byte("0123456789"))
	b.Write([]byte("ab"))
	if got := b.String(); got != "456789ab" {
		t.Fatalf("tail: got %q", got)
	}
}

func TestExecErrorSurfacesLastLine(t *testing.T) {
	err := &ExecError{ExitCode: 1, Stderr: "frame=  12\nNo such filter: 'bogus'\n"}
	if !strings.Contains(err.Error(), "No such filter") {
		t.Fatalf("message: %q", err.Error())
	}
}

func TestHardErrorDetection(t *testing.T) {
	if !hardError("Error while filtering") {
		t.Fatal("engine error not detected")
	}
	if hardError("frame= 100 fps= 30") {
		t.Fatal("progress noise misclassified")
	}
}
