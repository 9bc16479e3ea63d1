package planner

import (
	"math"

	"github.com/yoppiari/loopingflow/internal/domain"
)

// buildAudio composes the audio stage for a finished video plan. The base
// (original) track is handled per style, then every enabled layer joins the
// mix with its resolved gain and fade envelope. No loudness normalization is
// applied: configured gains are authoritative.
func buildAudio(plan *RenderPlan, req Request) AudioPlan {
	ap := AudioPlan{Base: AudioSilence}

	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	master := float64(req.MasterVolume) / 100

	if !req.MuteOriginal {
		ap.BaseGain = master
		ap.BaseFade = Fade{In: req.AudioFadeIn, Out: req.AudioFadeOut}

		if req.Style == domain.StyleCrossfade && req.Crossfade.Audio && plan.RepeatCount > 1 {
			ap.Base = AudioXfadeChain
			ap.ChainInputs = plan.RepeatCount
			ap.XfadeDuration = EffectiveTransition(req.Crossfade.Duration, req.SourceDuration)
		} else {
			// Forward-only loop. Boomerang audio deliberately does not
			// reverse with the video: reversed ambient or music audio
			// reads as unnatural, while the video seam still benefits
			// from symmetry.
			ap.Base = AudioLoopOriginal
			ap.LoopSamples = int64(math.Floor(req.SourceDuration * float64(sampleRate)))
			ap.LoopCount = ceilDiv(req.TargetDuration, req.SourceDuration) - 1
		}
	}

	// LayerIndex is the position in the request slice, not the persisted
	// ordering column: deletes leave gaps in the stored indexes, while the
	// executor resolves paths positionally.
	for i, layer := range req.Layers {
		if layer.Muted {
			continue
		}
		ap.Layers = append(ap.Layers, MixEntry{
			LayerIndex: i,
			Gain:       ResolveGain(layer.Volume, req.MasterVolume),
			Fade:       Fade{In: layer.FadeIn, Out: layer.FadeOut},
		})
	}

	return ap
}

// ResolveGain composes a layer volume with the master volume, both on a 0-100
// scale: layerVolume*masterVolume/10000. Master volume has no documented
// upper bound, so gains above 1.0 are passed through unclamped.
func ResolveGain(layerVolume, masterVolume int) float64 {
	return float64(layerVolume) * float64(masterVolume) / 10000
}

// Contributors counts the streams summed into the output. Zero means the
// plan degenerates to silence generation.
func (ap AudioPlan) Contributors() int {
	n := len(ap.Layers)
	if ap.Base != AudioSilence {
		n++
	}
	return n
}
