package domain

import "time"

// AssetKind distinguishes uploaded sources from rendered outputs.
type AssetKind string

const (
	AssetKindSource AssetKind = "source"
	AssetKindOutput AssetKind = "output"
)

// MediaAsset is a stored media file. Duration, dimensions and the audio flag
// are probed once and cached; the record is immutable after that.
type MediaAsset struct {
	ID         string
	UserID     string
	Kind       AssetKind
	StorageKey string
	FileName   string
	MimeType   string
	FileSize   int64
	Duration   float64
	Width      int
	Height     int
	HasAudio   bool
	CreatedAt  time.Time
}

// Probed reports whether the cached probe fields are populated.
func (a *MediaAsset) Probed() bool {
	return a.Duration > 0
}
