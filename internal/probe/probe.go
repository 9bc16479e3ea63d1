// Package probe inspects media files with ffprobe. One JSON call per file;
// the parse layer is exported so tests never need the binary.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Error marks a file as unreadable or undecodable. Probe failures are
// job-fatal: waiting and retrying cannot make a corrupt source decodable.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %q: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the subset of stream metadata the loop pipeline consumes.
type Result struct {
	Duration   float64
	HasVideo   bool
	HasAudio   bool
	SampleRate int
	Width      int
	Height     int
}

// Prober runs ffprobe. The zero value uses the binary from PATH.
type Prober struct {
	Binary string
}

func (p *Prober) binary() string {
	if p != nil && p.Binary != "" {
		return p.Binary
	}
	return "ffprobe"
}

// Probe returns the playable duration and stream layout of the file at path.
func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	cmd := exec.CommandContext(ctx, p.binary(),
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	res, err := ParseJSON(out)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	if !res.HasVideo && !res.HasAudio {
		return nil, &Error{Path: path, Err: fmt.Errorf("no decodable video or audio stream")}
	}
	if res.Duration <= 0 {
		return nil, &Error{Path: path, Err: fmt.Errorf("no playable duration")}
	}
	return res, nil
}

// Duration is a convenience wrapper returning only the duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	res, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return res.Duration, nil
}

// ParseJSON converts raw ffprobe JSON output into a Result. Exported for
// testing without a real ffprobe binary.
func ParseJSON(data []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	res := &Result{Duration: parseFloat(raw.Format.Duration)}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			// Cover art shows up as an attached-pic video stream.
			if s.Disposition["attached_pic"] == 1 {
				continue
			}
			res.HasVideo = true
			if res.Width == 0 {
				res.Width = s.Width
				res.Height = s.Height
			}
		case "audio":
			res.HasAudio = true
			if res.SampleRate == 0 {
				res.SampleRate = parseInt(s.SampleRate)
			}
		}
		// Some containers only report duration per stream.
		if res.Duration == 0 {
			res.Duration = parseFloat(s.Duration)
		}
	}
	return res, nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType   string         `json:"codec_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	SampleRate  string         `json:"sample_rate"`
	Duration    string         `json:"duration"`
	Disposition map[string]int `json:"disposition"`
}

// ffprobe reports numbers as strings.

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
