package domain

import "fmt"

// LoopStyle selects the seam construction technique for a render.
type LoopStyle string

const (
	StyleSimple    LoopStyle = "simple"
	StyleCrossfade LoopStyle = "crossfade"
	StyleBoomerang LoopStyle = "boomerang"
)

// ParseLoopStyle validates a wire-format style string.
func ParseLoopStyle(s string) (LoopStyle, error) {
	switch LoopStyle(s) {
	case StyleSimple, StyleCrossfade, StyleBoomerang:
		return LoopStyle(s), nil
	}
	return "", fmt.Errorf("%w: unknown loop style %q", ErrValidation, s)
}

// CrossfadeParams carries the crossfade-specific knobs. Video and Audio
// select which streams the transition chain applies to; a stream that opts
// out falls back to simple looping synchronized to the same target duration.
type CrossfadeParams struct {
	Duration float64
	Video    bool
	Audio    bool
}

// Intake defaults, matching the public contract.
const (
	DefaultCrossfadeDuration = 1.0
	DefaultMasterVolume      = 100
	DefaultAudioFadeIn       = 2.0
	DefaultAudioFadeOut      = 2.0
)

// AudioLayer is an overlay audio track attached to a job. Volume is a 0-100
// percentage applied independently of the master volume.
type AudioLayer struct {
	ID         string
	JobID      string
	LayerIndex int
	StorageKey string
	FileName   string
	FileSize   int64
	Duration   float64
	Volume     int
	Muted      bool
	FadeIn     float64
	FadeOut    float64
}
