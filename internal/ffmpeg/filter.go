package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/yoppiari/loopingflow/internal/planner"
)

// aloopMaxSamples caps the overlay-layer loop window at the filter's limit;
// layers are trimmed to the output duration right after, so the cap is never
// reached in practice.
const aloopMaxSamples = 2147483647

// graph is the serialized filter_complex plus the output stream selectors.
type graph struct {
	filter   string
	videoMap string
	audioMap string
}

func buildGraph(p *planner.RenderPlan, l *inputLayout) graph {
	var parts []string
	g := graph{}

	g.videoMap = buildVideoChains(p, &parts)
	g.audioMap = buildAudioChains(p, l, &parts)

	g.filter = strings.Join(parts, ";")
	return g
}

func buildVideoChains(p *planner.RenderPlan, parts *[]string) string {
	switch p.Video.Mode {
	case planner.VideoXfadeChain:
		current := "[0:v]"
		for i, tr := range p.Video.Transitions {
			next := fmt.Sprintf("[vx%d]", i+1)
			if i == len(p.Video.Transitions)-1 {
				next = "[vout]"
			}
			*parts = append(*parts, fmt.Sprintf(
				"%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s",
				current, i+1, formatSeconds(tr.Duration), formatSeconds(tr.Offset), next,
			))
			current = next
		}
		return "[vout]"

	case planner.VideoPingPong:
		// One unit = forward + reversed copy with its clock restarted, so
		// the unit begins and ends on the source's first frame.
		n := p.Video.UnitRepeats
		var split strings.Builder
		split.WriteString(fmt.Sprintf("[0:v]split=%d", 2*n))
		for i := 0; i < n; i++ {
			split.WriteString(fmt.Sprintf("[f%d][p%d]", i, i))
		}
		*parts = append(*parts, split.String())

		for i := 0; i < n; i++ {
			*parts = append(*parts, fmt.Sprintf("[p%d]reverse,setpts=PTS-STARTPTS[r%d]", i, i))
		}

		var concat strings.Builder
		for i := 0; i < n; i++ {
			concat.WriteString(fmt.Sprintf("[f%d][r%d]", i, i))
		}
		concat.WriteString(fmt.Sprintf("concat=n=%d:v=1:a=0[vout]", 2*n))
		*parts = append(*parts, concat.String())
		return "[vout]"

	default: // VideoStreamLoop: the demuxer loops, nothing to filter.
		return "0:v"
	}
}

func buildAudioChains(p *planner.RenderPlan, l *inputLayout, parts *[]string) string {
	if l.silence >= 0 {
		return fmt.Sprintf("%d:a", l.silence)
	}

	var mixInputs []string

	if p.Audio.Base != planner.AudioSilence {
		baseFilters := baseAudioFilters(p, l)
		envelope := envelopeFilters(p.Audio.BaseGain, p.Audio.BaseFade, p.OutputDuration)
		chain := append(baseFilters, envelope...)

		soleUntouched := len(p.Audio.Layers) == 0 && len(chain) == 0
		if p.Audio.Base == planner.AudioXfadeChain {
			label := appendXfadeChain(p, l, parts, chain, len(p.Audio.Layers) == 0)
			mixInputs = append(mixInputs, label)
			if len(p.Audio.Layers) == 0 {
				return label
			}
		} else if soleUntouched {
			// Original audio passes straight through, already looped by
			// the demuxer or covering the target on its own.
			return fmt.Sprintf("%d:a", l.audioBase)
		} else {
			if len(chain) == 0 {
				chain = []string{"anull"}
			}
			label := "[ab]"
			if len(p.Audio.Layers) == 0 {
				label = "[aout]"
			}
			*parts = append(*parts, fmt.Sprintf("[%d:a]%s%s", l.audioBase, strings.Join(chain, ","), label))
			if len(p.Audio.Layers) == 0 {
				return "[aout]"
			}
			mixInputs = append(mixInputs, label)
		}
	}

	for k, entry := range p.Audio.Layers {
		chain := []string{
			fmt.Sprintf("aloop=loop=-1:size=%d", aloopMaxSamples),
			fmt.Sprintf("atrim=0:%s", formatSeconds(p.OutputDuration)),
		}
		chain = append(chain, envelopeFilters(entry.Gain, entry.Fade, p.OutputDuration)...)
		label := fmt.Sprintf("[al%d]", k)
		sole := p.Audio.Base == planner.AudioSilence && len(p.Audio.Layers) == 1
		if sole {
			label = "[aout]"
		}
		*parts = append(*parts, fmt.Sprintf("[%d:a]%s%s", l.layerInputs[k], strings.Join(chain, ","), label))
		if sole {
			return "[aout]"
		}
		mixInputs = append(mixInputs, label)
	}

	// Streams are summed as configured: no loudness normalization, so the
	// resolved gains stay authoritative.
	*parts = append(*parts, fmt.Sprintf(
		"%samix=inputs=%d:duration=longest:normalize=0[aout]",
		strings.Join(mixInputs, ""), len(mixInputs),
	))
	return "[aout]"
}

// baseAudioFilters loops the original track forward when the demuxer is not
// already doing it.
func baseAudioFilters(p *planner.RenderPlan, l *inputLayout) []string {
	if p.Audio.Base != planner.AudioLoopOriginal {
		return nil
	}
	if l.demuxerLoop || p.Audio.LoopCount <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("aloop=loop=%d:size=%d", p.Audio.LoopCount, p.Audio.LoopSamples)}
}

// appendXfadeChain emits the acrossfade chain for the original track and
// applies the gain/fade envelope to its tail.
func appendXfadeChain(p *planner.RenderPlan, l *inputLayout, parts *[]string, envelope []string, terminal bool) string {
	current := fmt.Sprintf("[%d:a]", l.audioChain[0])
	for i := 1; i < len(l.audioChain); i++ {
		next := fmt.Sprintf("[ax%d]", i)
		if i == len(l.audioChain)-1 && len(envelope) == 0 {
			next = "[ab]"
			if terminal {
				next = "[aout]"
			}
		}
		*parts = append(*parts, fmt.Sprintf(
			"%s[%d:a]acrossfade=d=%s%s",
			current, l.audioChain[i], formatSeconds(p.Audio.XfadeDuration), next,
		))
		current = next
	}
	if len(envelope) > 0 {
		label := "[ab]"
		if terminal {
			label = "[aout]"
		}
		*parts = append(*parts, fmt.Sprintf("%s%s%s", current, strings.Join(envelope, ","), label))
		current = label
	}
	return current
}

// envelopeFilters renders a gain plus fade-in/out envelope. A unit gain and
// zero fades produce no filters at all.
func envelopeFilters(gain float64, fade planner.Fade, total float64) []string {
	var filters []string
	if gain != 1.0 {
		filters = append(filters, fmt.Sprintf("volume=%s", formatSeconds(gain)))
	}
	if fade.In > 0 {
		filters = append(filters, fmt.Sprintf("afade=t=in:st=0:d=%s", formatSeconds(fade.In)))
	}
	if fade.Out > 0 {
		start := total - fade.Out
		if start < 0 {
			start = 0
		}
		filters = append(filters, fmt.Sprintf("afade=t=out:st=%s:d=%s", formatSeconds(start), formatSeconds(fade.Out)))
	}
	return filters
}
