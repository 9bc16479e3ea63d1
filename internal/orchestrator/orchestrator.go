// Package orchestrator drives one loop render end to end: probe, plan,
// execute, persist. It owns every job state transition after intake and the
// credit refund policy on failure. Both intake paths (queue and poll) funnel
// into the same Process method.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/ffmpeg"
	"github.com/yoppiari/loopingflow/internal/planner"
	"github.com/yoppiari/loopingflow/internal/probe"
)

// JobStore is the persistence surface the orchestrator needs. *store.Store
// satisfies it; tests substitute fakes.
type JobStore interface {
	Job(ctx context.Context, jobID string) (*domain.GenerationJob, error)
	JobStatus(ctx context.Context, jobID string) (domain.JobStatus, error)
	MarkCompleted(ctx context.Context, jobID, outputAssetID, outputKey string) error
	MarkFailed(ctx context.Context, jobID, message string) error
	ClaimNextPending(ctx context.Context) (*domain.GenerationJob, error)
	ClaimPending(ctx context.Context, jobID string) (bool, error)
	AudioLayers(ctx context.Context, jobID string) ([]domain.AudioLayer, error)
	Asset(ctx context.Context, assetID string) (*domain.MediaAsset, error)
	CacheProbe(ctx context.Context, assetID string, duration float64, width, height int, hasAudio bool) error
	CreateAsset(ctx context.Context, asset *domain.MediaAsset) error
}

// Refunder is the slice of the credits gateway used on failure.
type Refunder interface {
	Refund(ctx context.Context, userID string, amount int, reason, jobID string) (int, error)
}

// Prober measures media files.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

// Runner executes prepared engine invocations.
type Runner interface {
	Run(ctx context.Context, args []string, outputPath string, onProgress func(float64)) (*ffmpeg.Report, error)
}

// FileStore resolves storage keys to paths and imports finished renders.
type FileStore interface {
	Path(key string) (string, error)
	ImportFile(ctx context.Context, key, srcPath string) (string, int64, error)
}

// ProgressSink receives advisory progress percentages.
type ProgressSink interface {
	Set(ctx context.Context, jobID string, percent int)
	Clear(ctx context.Context, jobID string)
}

type Orchestrator struct {
	Store    JobStore
	Credits  Refunder
	Prober   Prober
	Runner   Runner
	Files    FileStore
	Progress ProgressSink
	Logger   zerolog.Logger

	// ScratchDir hosts per-job render directories. Empty means os.TempDir.
	ScratchDir string
}

// Process runs one claimed job to a terminal state. The job must already be
// in processing. The returned error reflects infrastructure trouble only;
// a render failure is handled here (job failed, credits refunded) and
// returns nil.
func (o *Orchestrator) Process(ctx context.Context, job *domain.GenerationJob) error {
	log := o.Logger.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()
	log.Info().Str("style", string(job.Style)).Float64("target", job.TargetDuration).Msg("render: started")

	defer func() {
		if o.Progress != nil {
			o.Progress.Clear(ctx, job.ID)
		}
	}()

	outputAssetID, outputKey, err := o.render(ctx, &log, job)
	if err != nil {
		if errors.Is(err, errCancelled) {
			log.Info().Msg("render: job cancelled, stopping without refund")
			return nil
		}
		return o.fail(ctx, &log, job, err)
	}

	if err := o.Store.MarkCompleted(ctx, job.ID, outputAssetID, outputKey); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// Cancelled between the final write and here. The output asset
			// stays around; cleanup is a storage-reaper concern.
			log.Info().Msg("render: completed after cancellation, result dropped")
			return nil
		}
		return fmt.Errorf("finalize job: %w", err)
	}
	log.Info().Str("output_key", outputKey).Msg("render: completed")
	return nil
}

// errCancelled aborts the pipeline when a cancellation is observed at a
// stage boundary.
var errCancelled = errors.New("job cancelled")

// fail records the failure and refunds the full charge. Refund happens only
// when the failed transition succeeded, so a cancel that raced the failure
// never double-credits the user.
func (o *Orchestrator) fail(ctx context.Context, log *zerolog.Logger, job *domain.GenerationJob, cause error) error {
	log.Error().Err(cause).Msg("render: failed")

	if err := o.Store.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			log.Info().Msg("render: job already terminal, skipping refund")
			return nil
		}
		return fmt.Errorf("record failure: %w", err)
	}

	if job.CreditsCharged > 0 {
		remaining, err := o.Credits.Refund(ctx, job.UserID, job.CreditsCharged, "render failed", job.ID)
		if err != nil {
			// The job is already failed; surface the refund problem to the
			// caller so it is retried or escalated rather than lost.
			return fmt.Errorf("refund after failure: %w", err)
		}
		log.Info().Int("amount", job.CreditsCharged).Int("balance", remaining).Msg("render: credits refunded")
	}
	return nil
}

func (o *Orchestrator) render(ctx context.Context, log *zerolog.Logger, job *domain.GenerationJob) (assetID, outputKey string, err error) {
	source, err := o.Store.Asset(ctx, job.SourceAssetID)
	if err != nil {
		return "", "", fmt.Errorf("load source asset: %w", err)
	}
	sourcePath, err := o.Files.Path(source.StorageKey)
	if err != nil {
		return "", "", fmt.Errorf("resolve source path: %w", err)
	}

	meta, err := o.sourceMeta(ctx, log, source, sourcePath)
	if err != nil {
		return "", "", err
	}

	layers, err := o.Store.AudioLayers(ctx, job.ID)
	if err != nil {
		return "", "", fmt.Errorf("load audio layers: %w", err)
	}

	plan, err := planner.Build(planner.Request{
		SourceDuration: meta.Duration,
		TargetDuration: job.TargetDuration,
		Style:          job.Style,
		Crossfade:      job.Crossfade,
		MasterVolume:   job.MasterVolume,
		MuteOriginal:   job.MuteOriginal || !meta.HasAudio,
		AudioFadeIn:    job.AudioFadeIn,
		AudioFadeOut:   job.AudioFadeOut,
		SampleRate:     meta.SampleRate,
		Layers:         layers,
	})
	if err != nil {
		return "", "", fmt.Errorf("plan render: %w", err)
	}
	log.Info().
		Int("repeats", plan.RepeatCount).
		Bool("two_stage", plan.NeedsExtend()).
		Msg("render: plan ready")

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return "", "", err
	}

	scratch, err := os.MkdirTemp(o.ScratchDir, "render-"+job.ID+"-")
	if err != nil {
		return "", "", fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	layerPaths, err := o.layerPaths(plan, layers)
	if err != nil {
		return "", "", err
	}

	finalPath, err := o.execute(ctx, job, plan, sourcePath, layerPaths, scratch)
	if err != nil {
		return "", "", err
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return "", "", err
	}

	outputKey = path.Join("outputs", job.UserID, job.ID+".mp4")
	key, size, err := o.Files.ImportFile(ctx, outputKey, finalPath)
	if err != nil {
		return "", "", fmt.Errorf("store output: %w", err)
	}

	asset := &domain.MediaAsset{
		ID:         uuid.NewString(),
		UserID:     job.UserID,
		Kind:       domain.AssetKindOutput,
		StorageKey: key,
		FileName:   path.Base(key),
		MimeType:   "video/mp4",
		FileSize:   size,
		Duration:   job.TargetDuration,
		Width:      meta.Width,
		Height:     meta.Height,
		HasAudio:   true,
	}
	if err := o.Store.CreateAsset(ctx, asset); err != nil {
		return "", "", fmt.Errorf("record output asset: %w", err)
	}
	return asset.ID, key, nil
}

// sourceMeta returns probe results, from the asset cache when present.
func (o *Orchestrator) sourceMeta(ctx context.Context, log *zerolog.Logger, source *domain.MediaAsset, sourcePath string) (*probe.Result, error) {
	if source.Probed() {
		return &probe.Result{
			Duration:   source.Duration,
			HasVideo:   true,
			HasAudio:   source.HasAudio,
			SampleRate: planner.DefaultSampleRate,
			Width:      source.Width,
			Height:     source.Height,
		}, nil
	}
	res, err := o.Prober.Probe(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("probe source: %w", err)
	}
	if !res.HasVideo {
		return nil, fmt.Errorf("%w: source has no video stream", domain.ErrValidation)
	}
	if err := o.Store.CacheProbe(ctx, source.ID, res.Duration, res.Width, res.Height, res.HasAudio); err != nil {
		log.Warn().Err(err).Msg("render: probe cache write failed")
	}
	return res, nil
}

func (o *Orchestrator) layerPaths(plan *planner.RenderPlan, layers []domain.AudioLayer) ([]string, error) {
	if len(plan.Audio.Layers) == 0 {
		return nil, nil
	}
	paths := make([]string, len(layers))
	for i, layer := range layers {
		p, err := o.Files.Path(layer.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("resolve layer path: %w", err)
		}
		paths[i] = p
	}
	return paths, nil
}

// execute runs the engine: one invocation for direct renders, or a base
// render plus a stream-copy extension for long targets.
func (o *Orchestrator) execute(ctx context.Context, job *domain.GenerationJob, plan *planner.RenderPlan, sourcePath string, layerPaths []string, scratch string) (string, error) {
	target := plan.OutputDuration
	onProgress := func(seconds float64) {
		if o.Progress == nil || target <= 0 {
			return
		}
		percent := int(seconds / target * 100)
		if percent > 99 {
			percent = 99
		}
		o.Progress.Set(ctx, job.ID, percent)
	}

	if !plan.NeedsExtend() {
		out := filepath.Join(scratch, "loop.mp4")
		args, err := ffmpeg.Build(ffmpeg.BuildInput{
			Plan: plan, SourcePath: sourcePath, LayerPaths: layerPaths, OutputPath: out,
		})
		if err != nil {
			return "", err
		}
		if _, err := o.Runner.Run(ctx, args, out, onProgress); err != nil {
			return "", err
		}
		return out, nil
	}

	// Stage one renders a bounded base loop at the target bitrate.
	basePlan := *plan
	basePlan.OutputDuration = plan.BaseDuration()
	basePath := filepath.Join(scratch, "base.mp4")
	args, err := ffmpeg.Build(ffmpeg.BuildInput{
		Plan: &basePlan, SourcePath: sourcePath, LayerPaths: layerPaths, OutputPath: basePath,
	})
	if err != nil {
		return "", err
	}
	if _, err := o.Runner.Run(ctx, args, basePath, onProgress); err != nil {
		return "", fmt.Errorf("base render: %w", err)
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return "", err
	}

	// Stage two repeats the encoded base with the concat demuxer. The base's
	// real duration drives the repeat count so encoder padding cannot leave
	// the output short.
	actual := basePlan.OutputDuration
	if res, probeErr := o.Prober.Probe(ctx, basePath); probeErr == nil && res.Duration > 0 {
		actual = res.Duration
	}
	ext := plan.Extend(actual)
	listPath, err := ffmpeg.WriteConcatList(scratch, basePath, ext.Repeats)
	if err != nil {
		return "", err
	}
	out := filepath.Join(scratch, "loop.mp4")
	if _, err := o.Runner.Run(ctx, ffmpeg.BuildExtend(listPath, out, ext.TargetDuration), out, nil); err != nil {
		return "", fmt.Errorf("extend render: %w", err)
	}
	return out, nil
}

// checkCancelled aborts between pipeline stages when the user cancelled. A
// read failure is not fatal; the next boundary will check again.
func (o *Orchestrator) checkCancelled(ctx context.Context, jobID string) error {
	status, err := o.Store.JobStatus(ctx, jobID)
	if err != nil {
		return nil
	}
	if status == domain.JobStatusCancelled {
		return errCancelled
	}
	return nil
}
