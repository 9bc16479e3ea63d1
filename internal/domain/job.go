package domain

import "time"

// JobStatus enumerates loop generation lifecycle states.
type JobStatus string

const (
	// JobStatusDraft exists only while the intake assembles the job and its
	// layer rows; workers never claim drafts. Activation flips it to pending
	// within the same request.
	JobStatusDraft      JobStatus = "draft"
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Cancellable reports whether a user cancel request may still be honored.
func (s JobStatus) Cancellable() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// CancelMessage is the fixed error message recorded on user cancellation.
const CancelMessage = "Cancelled by user"

// GenerationJob is the lifecycle entity for one loop render. The intake layer
// creates it with credits already debited; only the orchestrator mutates it
// afterwards, and never once it reaches a terminal status.
type GenerationJob struct {
	ID             string
	UserID         string
	SourceAssetID  string
	TargetDuration float64
	Style          LoopStyle
	Crossfade      CrossfadeParams
	MasterVolume   int
	AudioFadeIn    float64
	AudioFadeOut   float64
	MuteOriginal   bool
	CreditsCharged int
	Status         JobStatus
	OutputAssetID  string
	OutputKey      string
	ErrorMessage   string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// CreditCostFor prices a render by target duration: 2 credits per started
// 15-minute block.
func CreditCostFor(targetSeconds float64) int {
	const blockSeconds = 900.0
	blocks := int(targetSeconds / blockSeconds)
	if float64(blocks)*blockSeconds < targetSeconds || blocks == 0 {
		blocks++
	}
	return blocks * 2
}
