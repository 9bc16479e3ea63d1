package planner

import "github.com/yoppiari/loopingflow/internal/domain"

// VideoMode selects how the repeat chain is realized by the engine.
type VideoMode int

const (
	// VideoStreamLoop repeats a single input at the demuxer and trims.
	VideoStreamLoop VideoMode = iota
	// VideoXfadeChain feeds RepeatCount copies of the source through a
	// chain of crossfade transitions.
	VideoXfadeChain
	// VideoPingPong lays out forward+reversed boomerang units in the graph.
	VideoPingPong
)

// Transition is one crossfade in the chain. Offset is the absolute position
// on the output timeline where the transition begins; offsets account for the
// overlap accumulated by every prior transition.
type Transition struct {
	Duration float64
	Offset   float64
}

// VideoPlan is the ordered video stage description.
type VideoPlan struct {
	Mode        VideoMode
	InputCopies int          // source inputs the graph consumes
	LoopCount   int          // extra demuxer repeats (stream-loop mode)
	UnitRepeats int          // boomerang units laid out (ping-pong mode)
	Transitions []Transition // xfade chain, in output order
}

// BaseAudio selects how the source clip's own audio track is handled.
type BaseAudio int

const (
	// AudioSilence generates silence for the full output duration. Chosen
	// only when nothing contributes (original muted, no layers).
	AudioSilence BaseAudio = iota
	// AudioLoopOriginal repeats the original track forward with
	// sample-accurate looping.
	AudioLoopOriginal
	// AudioXfadeChain joins RepeatCount copies of the original track with
	// complementary fades.
	AudioXfadeChain
)

// Fade is a fade-in/fade-out envelope in seconds.
type Fade struct {
	In  float64
	Out float64
}

// MixEntry is one overlay layer's contribution to the final mix. LayerIndex
// is the position in the request's layer slice (the stored ordering column
// may have gaps after deletes). Gain is the resolved linear gain: layer
// volume and master volume composed as layerVolume*masterVolume/10000.
type MixEntry struct {
	LayerIndex int
	Gain       float64
	Fade       Fade
}

// AudioPlan is the ordered audio stage description. Contributing streams are
// summed without loudness normalization, so configured gains are
// authoritative; gains above 1.0 may clip.
type AudioPlan struct {
	Base          BaseAudio
	BaseGain      float64
	BaseFade      Fade
	LoopSamples   int64   // sample-accurate loop period of the original track
	LoopCount     int     // extra forward repeats of the original track
	ChainInputs   int     // inputs consumed by the acrossfade chain
	XfadeDuration float64 // per-pair acrossfade duration
	Layers        []MixEntry
}

// RenderPlan is the engine-agnostic description of a full render. It is a
// pure value: building it twice from the same request yields identical plans.
type RenderPlan struct {
	Style          domain.LoopStyle
	SourceDuration float64
	OutputDuration float64 // always the requested target; the engine trims
	RepeatCount    int
	UnitDuration   float64 // one repeat unit: source, or 2x source for boomerang
	Video          VideoPlan
	Audio          AudioPlan
}

// MaxDirectRepeats bounds how many repeat units a single engine invocation
// lays out. Beyond it the render goes through a base loop plus a stream-copy
// extension (see ExtendPlan).
const MaxDirectRepeats = 25

// NeedsExtend reports whether the plan exceeds the direct-render bound.
func (p *RenderPlan) NeedsExtend() bool {
	return p.RepeatCount > MaxDirectRepeats
}

// BaseDuration is the duration of the stage-one base loop when the render is
// split in two stages.
func (p *RenderPlan) BaseDuration() float64 {
	if !p.NeedsExtend() {
		return p.OutputDuration
	}
	return p.UnitDuration * MaxDirectRepeats
}

// ExtendPlan describes stage two of a long render: the base loop repeated
// with the concat demuxer (no re-encode) and trimmed to the target.
type ExtendPlan struct {
	BaseDuration   float64
	Repeats        int
	TargetDuration float64
}

// Extend derives the concat-demuxer stage for a plan that needs one.
func (p *RenderPlan) Extend(actualBaseDuration float64) ExtendPlan {
	base := actualBaseDuration
	if base <= 0 {
		base = p.BaseDuration()
	}
	return ExtendPlan{
		BaseDuration:   base,
		Repeats:        ceilDiv(p.OutputDuration, base),
		TargetDuration: p.OutputDuration,
	}
}
