// Package store maps the loop service's entities onto the SQL layer. It is
// the only code that scans rows; handlers and the orchestrator work with
// domain values.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/sqlinline"
)

// ErrNoJob signals an empty queue to the polling worker.
var ErrNoJob = errors.New("no job available")

type Store struct {
	SQL infra.SQLExecutor
}

func New(sql infra.SQLExecutor) *Store {
	return &Store{SQL: sql}
}

// CreateJob persists a new job in draft. ID must be set by the caller; the
// database assigns CreatedAt. The job stays invisible to workers until
// ActivateJob flips it to pending.
func (s *Store) CreateJob(ctx context.Context, job *domain.GenerationJob) error {
	err := s.SQL.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID, job.UserID, job.SourceAssetID, job.TargetDuration, string(job.Style),
		job.Crossfade.Duration, job.Crossfade.Video, job.Crossfade.Audio,
		job.MasterVolume, job.AudioFadeIn, job.AudioFadeOut, job.MuteOriginal,
		job.CreditsCharged,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.Status = domain.JobStatusDraft
	return nil
}

// ActivateJob releases a draft job to the workers once its layer rows are all
// in place. ErrInvalidState means the draft was cancelled in the meantime.
func (s *Store) ActivateJob(ctx context.Context, jobID string) error {
	var id string
	err := s.SQL.QueryRow(ctx, sqlinline.QActivateJob, jobID).Scan(&id)
	if infra.IsNoRows(err) {
		return fmt.Errorf("%w: job left draft before activation", domain.ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("activate job: %w", err)
	}
	return nil
}

// JobForUser loads a job scoped to its owner.
func (s *Store) JobForUser(ctx context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	row := s.SQL.QueryRow(ctx, sqlinline.QJobByID, jobID, userID)
	return scanJob(row)
}

// Job loads a job without ownership scoping, for worker-side use.
func (s *Store) Job(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	row := s.SQL.QueryRow(ctx, sqlinline.QJobByIDAny, jobID)
	return scanJob(row)
}

func (s *Store) ListJobs(ctx context.Context, userID string, limit, offset int) ([]*domain.GenerationJob, error) {
	rows, err := s.SQL.Query(ctx, sqlinline.QListJobs, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// JobStatus re-reads just the status column. The orchestrator polls it at
// stage boundaries to honor cancellation without holding the row.
func (s *Store) JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error) {
	var status string
	err := s.SQL.QueryRow(ctx, sqlinline.QJobStatus, jobID).Scan(&status)
	if infra.IsNoRows(err) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("job status: %w", err)
	}
	return domain.JobStatus(status), nil
}

// CancelJob transitions pending or processing to cancelled. A job already in
// a terminal state returns ErrInvalidState; a missing job ErrNotFound.
func (s *Store) CancelJob(ctx context.Context, jobID, userID string) error {
	var id string
	err := s.SQL.QueryRow(ctx, sqlinline.QCancelJob, jobID, userID, domain.CancelMessage).Scan(&id)
	if err == nil {
		return nil
	}
	if !infra.IsNoRows(err) {
		return fmt.Errorf("cancel job: %w", err)
	}
	if _, lookupErr := s.JobForUser(ctx, jobID, userID); lookupErr != nil {
		return lookupErr
	}
	return fmt.Errorf("%w: job is no longer cancellable", domain.ErrInvalidState)
}

// ClaimNextPending atomically claims the oldest pending job, or ErrNoJob.
func (s *Store) ClaimNextPending(ctx context.Context) (*domain.GenerationJob, error) {
	row := s.SQL.QueryRow(ctx, sqlinline.QWorkerClaimNextJob)
	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrNoJob
	}
	return job, err
}

// ClaimPending is the queue-driven claim for a specific job: a compare-and-set
// from pending to processing. false means the job was cancelled or already
// picked up, and the task should be dropped silently.
func (s *Store) ClaimPending(ctx context.Context, jobID string) (bool, error) {
	var id string
	err := s.SQL.QueryRow(ctx, sqlinline.QClaimJobByID, jobID).Scan(&id)
	if infra.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return true, nil
}

// MarkCompleted finalizes a successful render. The status guard keeps a
// cancellation that raced the final write from being overwritten.
func (s *Store) MarkCompleted(ctx context.Context, jobID, outputAssetID, outputKey string) error {
	var id string
	err := s.SQL.QueryRow(ctx, sqlinline.QMarkJobCompleted, jobID, outputAssetID, outputKey).Scan(&id)
	if infra.IsNoRows(err) {
		return fmt.Errorf("%w: job left processing before completion", domain.ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a failure. Same guard as MarkCompleted.
func (s *Store) MarkFailed(ctx context.Context, jobID, message string) error {
	var id string
	err := s.SQL.QueryRow(ctx, sqlinline.QMarkJobFailed, jobID, message).Scan(&id)
	if infra.IsNoRows(err) {
		return fmt.Errorf("%w: job left processing before failure was recorded", domain.ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// UserStats aggregates a user's job history for the stats endpoint.
type UserStats struct {
	Completed       int
	Failed          int
	Cancelled       int
	Active          int
	SecondsRendered float64
	CreditsSpent    int
}

func (s *Store) Stats(ctx context.Context, userID string) (UserStats, error) {
	var st UserStats
	err := s.SQL.QueryRow(ctx, sqlinline.QUserStats, userID).Scan(
		&st.Completed, &st.Failed, &st.Cancelled, &st.Active,
		&st.SecondsRendered, &st.CreditsSpent,
	)
	if err != nil {
		return UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.GenerationJob, error) {
	var (
		job           domain.GenerationJob
		style, status string
		outputAssetID *string
		outputKey     *string
		errorMessage  *string
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.SourceAssetID, &job.TargetDuration, &style,
		&job.Crossfade.Duration, &job.Crossfade.Video, &job.Crossfade.Audio,
		&job.MasterVolume, &job.AudioFadeIn, &job.AudioFadeOut, &job.MuteOriginal,
		&job.CreditsCharged, &status, &outputAssetID, &outputKey, &errorMessage,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if infra.IsNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Style = domain.LoopStyle(style)
	job.Status = domain.JobStatus(status)
	if outputAssetID != nil {
		job.OutputAssetID = *outputAssetID
	}
	if outputKey != nil {
		job.OutputKey = *outputKey
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	return &job, nil
}
