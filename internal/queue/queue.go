// Package queue is the Redis-backed intake path. Jobs are still persisted in
// postgres first; the queue only carries the job ID, so a lost task degrades
// to the poll path picking the job up later.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypeRenderLoop is the asynq task type for one loop render.
const TypeRenderLoop = "loop:render"

type RenderPayload struct {
	JobID string `json:"jobId"`
}

// NewRenderTask builds the asynq task for a persisted job.
func NewRenderTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RenderPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderLoop, payload, asynq.MaxRetry(0), asynq.Timeout(4*time.Hour)), nil
}

// Enqueuer pushes render tasks. A nil Enqueuer is valid and means the
// deployment runs poll-only.
type Enqueuer struct {
	client *asynq.Client
	logger zerolog.Logger
}

func NewEnqueuer(client *asynq.Client, logger zerolog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// EnqueueRender submits the job to the queue. Failures are logged, not
// returned: the job row already exists and the poller will find it.
func (e *Enqueuer) EnqueueRender(ctx context.Context, jobID string) {
	if e == nil || e.client == nil {
		return
	}
	task, err := NewRenderTask(jobID)
	if err != nil {
		e.logger.Error().Err(err).Str("job_id", jobID).Msg("queue: build task failed")
		return
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		e.logger.Error().Err(err).Str("job_id", jobID).Msg("queue: enqueue failed, poller will pick up")
		return
	}
	e.logger.Info().Str("job_id", jobID).Str("task_id", info.ID).Msg("queue: render enqueued")
}
