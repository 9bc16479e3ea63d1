package handlers

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yoppiari/loopingflow/internal/domain"
)

type layerDTO struct {
	ID         string  `json:"id"`
	LayerIndex int     `json:"layer_index"`
	FileName   string  `json:"file_name"`
	FileSize   int64   `json:"file_size"`
	Duration   float64 `json:"duration,omitempty"`
	Volume     int     `json:"volume"`
	Muted      bool    `json:"muted"`
	FadeIn     float64 `json:"fade_in"`
	FadeOut    float64 `json:"fade_out"`
}

func toLayerDTO(l domain.AudioLayer) layerDTO {
	return layerDTO{
		ID:         l.ID,
		LayerIndex: l.LayerIndex,
		FileName:   l.FileName,
		FileSize:   l.FileSize,
		Duration:   l.Duration,
		Volume:     l.Volume,
		Muted:      l.Muted,
		FadeIn:     l.FadeIn,
		FadeOut:    l.FadeOut,
	}
}

var allowedAudioTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp4":   true,
	"audio/aac":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/ogg":   true,
	"audio/flac":  true,
}

// jobForLayerChange loads the job and rejects layer mutations once the render
// has been claimed: the worker snapshots layers when it starts.
func (a *App) jobForLayerChange(r *http.Request, jobID, userID string) (*domain.GenerationJob, error) {
	job, err := a.store().JobForUser(r.Context(), jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPending {
		return nil, domain.ErrInvalidState
	}
	return job, nil
}

// LayersAdd uploads an overlay audio track onto a pending job.
func (a *App) LayersAdd(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.jobForLayerChange(r, jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field 'file' required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !allowedAudioTypes[mimeType] {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media", "expected an audio upload")
		return
	}

	st := a.store()
	if err := st.ReserveStorage(r.Context(), userID, header.Size); err != nil {
		a.domainError(w, err)
		return
	}

	layerID := uuid.NewString()
	key := path.Join("layers", userID, job.ID, layerID+strings.ToLower(path.Ext(header.Filename)))
	savedKey, size, err := a.Files.SaveStream(r.Context(), key, file)
	if err != nil {
		a.releaseQuota(r, userID, header.Size)
		a.domainError(w, err)
		return
	}

	layer := domain.AudioLayer{
		ID:         layerID,
		JobID:      job.ID,
		StorageKey: savedKey,
		FileName:   header.Filename,
		FileSize:   size,
		Volume:     100,
		FadeIn:     0,
		FadeOut:    0,
	}
	if probePath, pathErr := a.Files.Path(savedKey); pathErr == nil && a.Prober != nil {
		if res, probeErr := a.Prober.Probe(r.Context(), probePath); probeErr == nil && res.HasAudio {
			layer.Duration = res.Duration
		}
	}
	idx, err := st.NextLayerIndex(r.Context(), job.ID)
	if err != nil {
		a.Files.Remove(savedKey)
		a.releaseQuota(r, userID, size)
		a.domainError(w, err)
		return
	}
	layer.LayerIndex = idx
	if err := st.AddAudioLayer(r.Context(), &layer); err != nil {
		a.Files.Remove(savedKey)
		a.releaseQuota(r, userID, size)
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toLayerDTO(layer))
}

func (a *App) LayersList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if _, err := a.store().JobForUser(r.Context(), jobID, userID); err != nil {
		a.domainError(w, err)
		return
	}
	layers, err := a.store().AudioLayers(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	items := make([]layerDTO, 0, len(layers))
	for _, l := range layers {
		items = append(items, toLayerDTO(l))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type layerUpdateRequest struct {
	Volume  *int     `json:"volume" validate:"omitempty,gte=0,lte=100"`
	Muted   *bool    `json:"muted"`
	FadeIn  *float64 `json:"fade_in" validate:"omitempty,gte=0"`
	FadeOut *float64 `json:"fade_out" validate:"omitempty,gte=0"`
}

func (a *App) LayersUpdate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	layerID := chi.URLParam(r, "layer_id")
	if _, err := a.jobForLayerChange(r, jobID, userID); err != nil {
		a.domainError(w, err)
		return
	}
	var req layerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	st := a.store()
	layers, err := st.AudioLayers(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	var current *domain.AudioLayer
	for i := range layers {
		if layers[i].ID == layerID {
			current = &layers[i]
			break
		}
	}
	if current == nil {
		a.domainError(w, domain.ErrNotFound)
		return
	}
	if req.Volume != nil {
		current.Volume = *req.Volume
	}
	if req.Muted != nil {
		current.Muted = *req.Muted
	}
	if req.FadeIn != nil {
		current.FadeIn = *req.FadeIn
	}
	if req.FadeOut != nil {
		current.FadeOut = *req.FadeOut
	}
	if err := st.UpdateAudioLayer(r.Context(), layerID, jobID, current.Volume, current.Muted, current.FadeIn, current.FadeOut); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toLayerDTO(*current))
}

func (a *App) LayersDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	layerID := chi.URLParam(r, "layer_id")
	if _, err := a.jobForLayerChange(r, jobID, userID); err != nil {
		a.domainError(w, err)
		return
	}
	storageKey, freed, err := a.store().DeleteAudioLayer(r.Context(), layerID, jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if err := a.Files.Remove(storageKey); err != nil {
		a.Logger.Warn().Err(err).Str("key", storageKey).Msg("delete layer file failed")
	}
	a.releaseQuota(r, userID, freed)
	w.WriteHeader(http.StatusNoContent)
}
