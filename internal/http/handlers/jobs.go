package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/planner"
)

type crossfadeRequest struct {
	Duration float64 `json:"duration" validate:"gte=0"`
	Video    *bool   `json:"video"`
	Audio    *bool   `json:"audio"`
}

// jobLayerRequest attaches an already uploaded audio asset as an overlay
// layer at job creation. Layers can also be added afterwards while the job
// is still pending.
type jobLayerRequest struct {
	AssetID string  `json:"asset_id" validate:"required,uuid"`
	Volume  *int    `json:"volume" validate:"omitempty,gte=0,lte=100"`
	Muted   bool    `json:"muted"`
	FadeIn  float64 `json:"fade_in" validate:"gte=0"`
	FadeOut float64 `json:"fade_out" validate:"gte=0"`
}

type createJobRequest struct {
	SourceAssetID  string            `json:"source_asset_id" validate:"required,uuid"`
	TargetDuration float64           `json:"target_duration" validate:"required,gt=0,lte=14400"`
	Style          string            `json:"style" validate:"required,oneof=simple crossfade boomerang"`
	Crossfade      *crossfadeRequest `json:"crossfade"`
	MasterVolume   *int              `json:"master_volume" validate:"omitempty,gte=0"`
	MuteOriginal   bool              `json:"mute_original"`
	AudioFadeIn    *float64          `json:"audio_fade_in" validate:"omitempty,gte=0"`
	AudioFadeOut   *float64          `json:"audio_fade_out" validate:"omitempty,gte=0"`
	AudioLayers    []jobLayerRequest `json:"audio_layers" validate:"omitempty,max=10,dive"`
}

type jobDTO struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Style          string     `json:"style"`
	SourceAssetID  string     `json:"source_asset_id"`
	TargetDuration float64    `json:"target_duration"`
	CreditsCharged int        `json:"credits_charged"`
	OutputAssetID  string     `json:"output_asset_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	Progress       int        `json:"progress"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (a *App) jobDTO(r *http.Request, job *domain.GenerationJob) jobDTO {
	dto := jobDTO{
		ID:             job.ID,
		Status:         string(job.Status),
		Style:          string(job.Style),
		SourceAssetID:  job.SourceAssetID,
		TargetDuration: job.TargetDuration,
		CreditsCharged: job.CreditsCharged,
		OutputAssetID:  job.OutputAssetID,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
	switch job.Status {
	case domain.JobStatusCompleted:
		dto.Progress = 100
	case domain.JobStatusProcessing:
		if p := a.Progress.Get(r.Context(), job.ID); p >= 0 {
			dto.Progress = p
		}
	}
	return dto
}

// JobsCreate charges the render cost, persists the job as a draft with its
// layer rows, activates it to pending, then hands it to the queue. Credits
// come off before the insert; any failure on the way refunds immediately.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	style, err := domain.ParseLoopStyle(req.Style)
	if err != nil {
		a.domainError(w, err)
		return
	}

	st := a.store()
	if _, err := st.AssetForUser(r.Context(), req.SourceAssetID, userID); err != nil {
		a.domainError(w, err)
		return
	}

	// Resolve referenced layer assets before any credits move.
	layerAssets := make([]*domain.MediaAsset, len(req.AudioLayers))
	for i, lr := range req.AudioLayers {
		asset, err := st.AssetForUser(r.Context(), lr.AssetID, userID)
		if err != nil {
			a.domainError(w, err)
			return
		}
		layerAssets[i] = asset
	}

	job := &domain.GenerationJob{
		ID:             uuid.NewString(),
		UserID:         userID,
		SourceAssetID:  req.SourceAssetID,
		TargetDuration: req.TargetDuration,
		Style:          style,
		Crossfade:      crossfadeParams(req.Crossfade),
		MasterVolume:   domain.DefaultMasterVolume,
		AudioFadeIn:    domain.DefaultAudioFadeIn,
		AudioFadeOut:   domain.DefaultAudioFadeOut,
		MuteOriginal:   req.MuteOriginal,
		CreditsCharged: domain.CreditCostFor(req.TargetDuration),
	}
	if req.MasterVolume != nil {
		job.MasterVolume = *req.MasterVolume
	}
	if req.AudioFadeIn != nil {
		job.AudioFadeIn = *req.AudioFadeIn
	}
	if req.AudioFadeOut != nil {
		job.AudioFadeOut = *req.AudioFadeOut
	}

	balance, err := a.credits().Debit(r.Context(), userID, job.CreditsCharged, "loop render", job.ID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if err := st.CreateJob(r.Context(), job); err != nil {
		if _, refundErr := a.credits().Refund(r.Context(), userID, job.CreditsCharged, "job create failed", job.ID); refundErr != nil {
			a.Logger.Error().Err(refundErr).Str("job_id", job.ID).Msg("refund after failed insert")
		}
		a.domainError(w, err)
		return
	}

	for i, lr := range req.AudioLayers {
		layer := domain.AudioLayer{
			ID:         uuid.NewString(),
			JobID:      job.ID,
			LayerIndex: i,
			StorageKey: layerAssets[i].StorageKey,
			FileName:   layerAssets[i].FileName,
			FileSize:   layerAssets[i].FileSize,
			Duration:   layerAssets[i].Duration,
			Volume:     100,
			Muted:      lr.Muted,
			FadeIn:     lr.FadeIn,
			FadeOut:    lr.FadeOut,
		}
		if lr.Volume != nil {
			layer.Volume = *lr.Volume
		}
		if err := st.AddAudioLayer(r.Context(), &layer); err != nil {
			// The job must not start with a partial layer set. Cancel it and
			// hand the credits back.
			if cancelErr := st.CancelJob(r.Context(), job.ID, userID); cancelErr != nil {
				a.Logger.Error().Err(cancelErr).Str("job_id", job.ID).Msg("cancel after failed layer insert")
			}
			if _, refundErr := a.credits().Refund(r.Context(), userID, job.CreditsCharged, "job create failed", job.ID); refundErr != nil {
				a.Logger.Error().Err(refundErr).Str("job_id", job.ID).Msg("refund after failed layer insert")
			}
			a.domainError(w, err)
			return
		}
	}

	// The job was inserted as a draft so workers could not claim it while
	// layer rows were still being written. Release it now.
	if err := st.ActivateJob(r.Context(), job.ID); err != nil {
		if cancelErr := st.CancelJob(r.Context(), job.ID, userID); cancelErr != nil {
			a.Logger.Error().Err(cancelErr).Str("job_id", job.ID).Msg("cancel after failed activation")
		}
		if _, refundErr := a.credits().Refund(r.Context(), userID, job.CreditsCharged, "job create failed", job.ID); refundErr != nil {
			a.Logger.Error().Err(refundErr).Str("job_id", job.ID).Msg("refund after failed activation")
		}
		a.domainError(w, err)
		return
	}
	job.Status = domain.JobStatusPending

	a.Queue.EnqueueRender(r.Context(), job.ID)

	a.json(w, http.StatusAccepted, map[string]any{
		"job":            a.jobDTO(r, job),
		"credit_balance": balance,
	})
}

func crossfadeParams(req *crossfadeRequest) domain.CrossfadeParams {
	params := domain.CrossfadeParams{
		Duration: domain.DefaultCrossfadeDuration,
		Video:    true,
		Audio:    true,
	}
	if req == nil {
		return params
	}
	if req.Duration > 0 {
		params.Duration = req.Duration
	}
	if req.Video != nil {
		params.Video = *req.Video
	}
	if req.Audio != nil {
		params.Audio = *req.Audio
	}
	return params
}

func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.store().JobForUser(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.jobDTO(r, job))
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := a.store().ListJobs(r.Context(), userID, limit, offset)
	if err != nil {
		a.domainError(w, err)
		return
	}
	items := make([]jobDTO, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, a.jobDTO(r, job))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobCancel transitions a pending or processing job to cancelled. Credits
// are not refunded on cancellation.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if err := a.store().CancelJob(r.Context(), jobID, userID); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":     jobID,
		"status": string(domain.JobStatusCancelled),
	})
}

type estimateRequest struct {
	TargetDuration    float64 `json:"target_duration" validate:"required,gt=0,lte=14400"`
	SourceDuration    float64 `json:"source_duration" validate:"omitempty,gt=0"`
	Style             string  `json:"style" validate:"omitempty,oneof=simple crossfade boomerang"`
	CrossfadeDuration float64 `json:"crossfade_duration" validate:"omitempty,gte=0"`
}

// JobsEstimate prices a render before committing credits. With a source
// duration it also reports the planned repeat layout.
func (a *App) JobsEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp := map[string]any{
		"credits": domain.CreditCostFor(req.TargetDuration),
	}
	if req.SourceDuration > 0 {
		style := domain.StyleSimple
		if req.Style != "" {
			style = domain.LoopStyle(req.Style)
		}
		plan, err := planner.Build(planner.Request{
			SourceDuration: req.SourceDuration,
			TargetDuration: req.TargetDuration,
			Style:          style,
			Crossfade:      domain.CrossfadeParams{Duration: req.CrossfadeDuration, Video: true, Audio: true},
			MasterVolume:   domain.DefaultMasterVolume,
		})
		if err != nil {
			a.domainError(w, err)
			return
		}
		resp["repeat_count"] = plan.RepeatCount
		resp["two_stage"] = plan.NeedsExtend()
		if style == domain.StyleCrossfade {
			resp["effective_transition"] = planner.EffectiveTransition(req.CrossfadeDuration, req.SourceDuration)
		}
	}
	a.json(w, http.StatusOK, resp)
}
