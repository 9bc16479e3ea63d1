package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/yoppiari/loopingflow/internal/queue"
)

// TaskHandler adapts the orchestrator to the asynq worker server. The rate
// limiter caps how many renders this process starts per second, keeping a
// queue backlog from saturating the host with encoder subprocesses.
type TaskHandler struct {
	Orchestrator *Orchestrator
	Limiter      *rate.Limiter
}

func NewTaskHandler(o *Orchestrator, rendersPerSecond float64, burst int) *TaskHandler {
	var limiter *rate.Limiter
	if rendersPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(rendersPerSecond), burst)
	}
	return &TaskHandler{Orchestrator: o, Limiter: limiter}
}

// ProcessTask claims the job named by the task and renders it. A job that is
// no longer pending (cancelled while queued, or already claimed by the
// poller) is dropped without error.
func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.RenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode render task: %w", err)
	}
	if payload.JobID == "" {
		return fmt.Errorf("render task missing job id")
	}
	log := h.Orchestrator.Logger.With().Str("job_id", payload.JobID).Logger()

	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	claimed, err := h.Orchestrator.Store.ClaimPending(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		log.Info().Msg("queue: job no longer pending, dropping task")
		return nil
	}

	job, err := h.Orchestrator.Store.Job(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	return h.Orchestrator.Process(ctx, job)
}
