package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/yoppiari/loopingflow/internal/store"
)

// Poller is the database-driven intake: it claims the oldest pending job and
// hands it to the orchestrator, sleeping between empty polls. It needs no
// Redis and is the fallback path when the queue is down.
type Poller struct {
	Orchestrator *Orchestrator
	Interval     time.Duration
}

const defaultPollInterval = 2 * time.Second

// Run loops until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	log := p.Orchestrator.Logger
	log.Info().Dur("interval", interval).Msg("poller: started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := p.Orchestrator.Store.ClaimNextPending(ctx)
		if err != nil {
			if !errors.Is(err, store.ErrNoJob) {
				log.Error().Err(err).Msg("poller: claim failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
			continue
		}

		if err := p.Orchestrator.Process(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("poller: job processing error")
		}
	}
}
