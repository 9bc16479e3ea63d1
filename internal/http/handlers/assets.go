package handlers

import (
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/pkg/zip"
)

type assetDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	FileSize  int64     `json:"file_size"`
	Duration  float64   `json:"duration,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	HasAudio  bool      `json:"has_audio"`
	CreatedAt time.Time `json:"created_at"`
}

func toAssetDTO(a *domain.MediaAsset) assetDTO {
	return assetDTO{
		ID:        a.ID,
		Kind:      string(a.Kind),
		FileName:  a.FileName,
		MimeType:  a.MimeType,
		FileSize:  a.FileSize,
		Duration:  a.Duration,
		Width:     a.Width,
		Height:    a.Height,
		HasAudio:  a.HasAudio,
		CreatedAt: a.CreatedAt,
	}
}

var allowedVideoTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
}

// AssetsUpload ingests a source video: quota check, streamed write, probe,
// record. The probe runs at upload time so job creation never blocks on a
// subprocess.
func (a *App) AssetsUpload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
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
	if !allowedVideoTypes[mimeType] {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media", "expected a video upload")
		return
	}

	st := a.store()
	if err := st.ReserveStorage(r.Context(), userID, header.Size); err != nil {
		a.domainError(w, err)
		return
	}

	assetID := uuid.NewString()
	key := path.Join("sources", userID, assetID+strings.ToLower(path.Ext(header.Filename)))
	savedKey, size, err := a.Files.SaveStream(r.Context(), key, file)
	if err != nil {
		a.releaseQuota(r, userID, header.Size)
		a.domainError(w, err)
		return
	}

	asset := &domain.MediaAsset{
		ID:         assetID,
		UserID:     userID,
		Kind:       domain.AssetKindSource,
		StorageKey: savedKey,
		FileName:   header.Filename,
		MimeType:   mimeType,
		FileSize:   size,
	}

	if probePath, pathErr := a.Files.Path(savedKey); pathErr == nil && a.Prober != nil {
		res, probeErr := a.Prober.Probe(r.Context(), probePath)
		if probeErr != nil || !res.HasVideo {
			a.Files.Remove(savedKey)
			a.releaseQuota(r, userID, size)
			a.error(w, http.StatusUnprocessableEntity, "unreadable_media", "could not read a video stream from the upload")
			return
		}
		asset.Duration = res.Duration
		asset.Width = res.Width
		asset.Height = res.Height
		asset.HasAudio = res.HasAudio
	}

	if err := st.CreateAsset(r.Context(), asset); err != nil {
		a.Files.Remove(savedKey)
		a.releaseQuota(r, userID, size)
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toAssetDTO(asset))
}

func (a *App) releaseQuota(r *http.Request, userID string, size int64) {
	if err := a.store().ReleaseStorage(r.Context(), userID, size); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("release storage failed")
	}
}

func (a *App) AssetGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	asset, err := a.store().AssetForUser(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toAssetDTO(asset))
}

// AssetDownload streams the stored file with a download disposition.
func (a *App) AssetDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	asset, err := a.store().AssetForUser(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	f, err := a.Files.Open(asset.StorageKey)
	if err != nil {
		a.domainError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", asset.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+asset.FileName+`"`)
	if _, err := io.Copy(w, f); err != nil {
		a.Logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("download interrupted")
	}
}

func (a *App) AssetDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	st := a.store()
	storageKey, freed, err := st.DeleteAsset(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if err := a.Files.Remove(storageKey); err != nil {
		a.Logger.Warn().Err(err).Str("key", storageKey).Msg("delete stored file failed")
	}
	a.releaseQuota(r, userID, freed)
	w.WriteHeader(http.StatusNoContent)
}

// JobBundle zips a completed job's source and output into one download.
func (a *App) JobBundle(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	st := a.store()
	job, err := st.JobForUser(r.Context(), chi.URLParam(r, "job_id"), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if job.Status != domain.JobStatusCompleted {
		a.error(w, http.StatusConflict, "conflict", "job has no output yet")
		return
	}

	var entries []zip.Entry
	for _, assetID := range []string{job.SourceAssetID, job.OutputAssetID} {
		asset, err := st.AssetForUser(r.Context(), assetID, userID)
		if err != nil {
			continue
		}
		data, err := a.readStored(asset.StorageKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("bundle read failed")
			continue
		}
		entries = append(entries, zip.Entry{
			Filename: string(asset.Kind) + "-" + asset.FileName,
			Data:     data,
		})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no files available for this job")
		return
	}

	archive := zip.Bundle(entries)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="loop-`+job.ID+`.zip"`)
	w.Write(archive)
}

func (a *App) readStored(key string) ([]byte, error) {
	f, err := a.Files.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
