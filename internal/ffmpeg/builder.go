// Package ffmpeg serializes a RenderPlan into an ffmpeg invocation and runs
// it. The planner stays free of engine syntax; everything ffmpeg-shaped
// lives here.
package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/yoppiari/loopingflow/internal/planner"
)

// BuildInput binds a plan to concrete file paths.
type BuildInput struct {
	Plan       *planner.RenderPlan
	SourcePath string
	LayerPaths []string // one path per job layer, in slice order
	OutputPath string
}

// encodeOpts is the shared output encoding tail: H.264/AAC with the faststart
// flag so outputs stream before fully downloading.
var encodeOpts = []string{
	"-c:v", "libx264",
	"-preset", "medium",
	"-crf", "23",
	"-pix_fmt", "yuv420p",
	"-profile:v", "high",
	"-c:a", "aac",
	"-b:a", "192k",
	"-movflags", "+faststart",
}

// Build constructs the complete argv (argv[0] = binary) for a direct render.
func Build(in BuildInput) ([]string, error) {
	p := in.Plan
	if p == nil {
		return nil, fmt.Errorf("ffmpeg: nil plan")
	}
	if in.SourcePath == "" || in.OutputPath == "" {
		return nil, fmt.Errorf("ffmpeg: source and output paths are required")
	}
	for _, entry := range p.Audio.Layers {
		if entry.LayerIndex >= len(in.LayerPaths) || in.LayerPaths[entry.LayerIndex] == "" {
			return nil, fmt.Errorf("ffmpeg: no path for audio layer %d", entry.LayerIndex)
		}
	}

	args := []string{"ffmpeg", "-hide_banner", "-nostdin", "-y", "-loglevel", "error"}

	layout, err := planInputs(p, in)
	if err != nil {
		return nil, err
	}
	args = append(args, layout.inputArgs...)

	graph := buildGraph(p, layout)
	if graph.filter != "" {
		args = append(args, "-filter_complex", graph.filter)
	}
	args = append(args, "-map", graph.videoMap, "-map", graph.audioMap)

	args = append(args, "-t", formatSeconds(p.OutputDuration))
	args = append(args, encodeOpts...)
	args = append(args, in.OutputPath)
	return args, nil
}

// inputLayout records where each logical stream landed in the -i list.
type inputLayout struct {
	inputArgs   []string
	videoInputs int   // consecutive source copies starting at 0
	audioChain  []int // input indices feeding the acrossfade chain
	audioBase   int   // input index of the original audio track
	layerInputs []int // input index per mix entry (parallel to Audio.Layers)
	silence     int   // anullsrc input index, -1 if absent
	demuxerLoop bool  // original audio already looped by -stream_loop
}

func planInputs(p *planner.RenderPlan, in BuildInput) (*inputLayout, error) {
	l := &inputLayout{audioBase: 0, silence: -1}
	next := 0

	addSource := func(streamLoop int) int {
		if streamLoop > 0 {
			l.inputArgs = append(l.inputArgs, "-stream_loop", strconv.Itoa(streamLoop))
		}
		l.inputArgs = append(l.inputArgs, "-i", in.SourcePath)
		idx := next
		next++
		return idx
	}

	switch p.Video.Mode {
	case planner.VideoStreamLoop:
		addSource(p.Video.LoopCount)
		l.videoInputs = 1
		l.demuxerLoop = p.Video.LoopCount > 0
	case planner.VideoXfadeChain:
		if p.Video.InputCopies < 2 {
			return nil, fmt.Errorf("ffmpeg: xfade chain needs at least 2 inputs, got %d", p.Video.InputCopies)
		}
		for i := 0; i < p.Video.InputCopies; i++ {
			addSource(0)
		}
		l.videoInputs = p.Video.InputCopies
	case planner.VideoPingPong:
		addSource(0)
		l.videoInputs = 1
	default:
		return nil, fmt.Errorf("ffmpeg: unknown video mode %d", p.Video.Mode)
	}

	if p.Audio.Base == planner.AudioXfadeChain {
		if p.Video.Mode == planner.VideoXfadeChain && p.Audio.ChainInputs <= l.videoInputs {
			// The video chain's inputs double as the audio chain.
			for i := 0; i < p.Audio.ChainInputs; i++ {
				l.audioChain = append(l.audioChain, i)
			}
		} else {
			for i := 0; i < p.Audio.ChainInputs; i++ {
				l.audioChain = append(l.audioChain, addSource(0))
			}
		}
	}

	for _, entry := range p.Audio.Layers {
		l.inputArgs = append(l.inputArgs, "-i", in.LayerPaths[entry.LayerIndex])
		l.layerInputs = append(l.layerInputs, next)
		next++
	}

	if p.Audio.Contributors() == 0 {
		l.inputArgs = append(l.inputArgs,
			"-f", "lavfi",
			"-t", formatSeconds(p.OutputDuration),
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		)
		l.silence = next
		next++
	}

	return l, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
