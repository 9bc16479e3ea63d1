// Package planner turns a loop request into a declarative RenderPlan. It is
// pure arithmetic: no I/O, no randomness, no engine knowledge. All downstream
// encode cost and seam correctness flow from the numbers produced here.
package planner

import (
	"fmt"
	"math"

	"github.com/yoppiari/loopingflow/internal/domain"
)

// DefaultSampleRate is assumed when the probe did not report one.
const DefaultSampleRate = 44100

// Request carries everything the planner needs. SourceDuration comes from
// the duration probe; the rest mirrors the job record.
type Request struct {
	SourceDuration float64
	TargetDuration float64
	Style          domain.LoopStyle
	Crossfade      domain.CrossfadeParams
	MasterVolume   int
	MuteOriginal   bool
	AudioFadeIn    float64
	AudioFadeOut   float64
	SampleRate     int
	Layers         []domain.AudioLayer
}

// Build computes the RenderPlan for a request.
func Build(req Request) (*RenderPlan, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	plan := &RenderPlan{
		Style:          req.Style,
		SourceDuration: req.SourceDuration,
		OutputDuration: req.TargetDuration,
	}

	switch req.Style {
	case domain.StyleSimple:
		buildSimple(plan, req)
	case domain.StyleCrossfade:
		buildCrossfade(plan, req)
	case domain.StyleBoomerang:
		buildBoomerang(plan, req)
	default:
		return nil, fmt.Errorf("%w: loop style %q", domain.ErrValidation, req.Style)
	}

	plan.Audio = buildAudio(plan, req)
	return plan, nil
}

func validate(req Request) error {
	if !(req.SourceDuration > 0) {
		return fmt.Errorf("%w: source duration must be positive, got %v", domain.ErrValidation, req.SourceDuration)
	}
	if !(req.TargetDuration > 0) {
		return fmt.Errorf("%w: target duration must be positive, got %v", domain.ErrValidation, req.TargetDuration)
	}
	if req.MasterVolume < 0 {
		return fmt.Errorf("%w: master volume must not be negative", domain.ErrValidation)
	}
	if req.Crossfade.Duration < 0 {
		return fmt.Errorf("%w: crossfade duration must not be negative", domain.ErrValidation)
	}
	if req.AudioFadeIn < 0 || req.AudioFadeOut < 0 {
		return fmt.Errorf("%w: audio fades must not be negative", domain.ErrValidation)
	}
	for _, layer := range req.Layers {
		if layer.Volume < 0 || layer.Volume > 100 {
			return fmt.Errorf("%w: layer %d volume out of range", domain.ErrValidation, layer.LayerIndex)
		}
		if layer.FadeIn < 0 || layer.FadeOut < 0 {
			return fmt.Errorf("%w: layer %d fades must not be negative", domain.ErrValidation, layer.LayerIndex)
		}
	}
	return nil
}

func buildSimple(plan *RenderPlan, req Request) {
	plan.UnitDuration = req.SourceDuration
	plan.RepeatCount = ceilDiv(req.TargetDuration, req.SourceDuration)
	plan.Video = VideoPlan{
		Mode:        VideoStreamLoop,
		InputCopies: 1,
		LoopCount:   plan.RepeatCount - 1,
	}
}

// buildCrossfade lays out a chain of RepeatCount source copies. The i-th
// transition starts at i*source - i*d: every copy starts earlier by the
// overlap accumulated over all prior transitions, not just its own.
func buildCrossfade(plan *RenderPlan, req Request) {
	plan.UnitDuration = req.SourceDuration
	plan.RepeatCount = ceilDiv(req.TargetDuration, req.SourceDuration)

	d := EffectiveTransition(req.Crossfade.Duration, req.SourceDuration)

	if !req.Crossfade.Video || plan.RepeatCount < 2 {
		// Single trimmed copy, or video opted out of the transition chain.
		plan.Video = VideoPlan{
			Mode:        VideoStreamLoop,
			InputCopies: 1,
			LoopCount:   plan.RepeatCount - 1,
		}
		return
	}

	transitions := make([]Transition, 0, plan.RepeatCount-1)
	for i := 1; i < plan.RepeatCount; i++ {
		transitions = append(transitions, Transition{
			Duration: d,
			Offset:   float64(i)*req.SourceDuration - float64(i)*d,
		})
	}
	plan.Video = VideoPlan{
		Mode:        VideoXfadeChain,
		InputCopies: plan.RepeatCount,
		Transitions: transitions,
	}
}

// buildBoomerang repeats forward+reversed units. The reversed segment's clock
// restarts at zero, so the unit begins and ends on the source's first frame
// and the loop seam is exact by construction.
func buildBoomerang(plan *RenderPlan, req Request) {
	plan.UnitDuration = 2 * req.SourceDuration
	plan.RepeatCount = ceilDiv(req.TargetDuration, plan.UnitDuration)
	plan.Video = VideoPlan{
		Mode:        VideoPingPong,
		InputCopies: 1,
		UnitRepeats: plan.RepeatCount,
	}
}

// EffectiveTransition clamps a requested crossfade duration to a quarter of
// one loop. Longer transitions would overlap into earlier transitions and
// make the chain ill-defined.
func EffectiveTransition(requested, sourceDuration float64) float64 {
	if requested <= 0 {
		requested = domain.DefaultCrossfadeDuration
	}
	return math.Min(requested, sourceDuration/4)
}

func ceilDiv(target, unit float64) int {
	n := int(math.Ceil(target / unit))
	if n < 1 {
		n = 1
	}
	return n
}
