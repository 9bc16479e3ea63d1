package store

import (
	"context"
	"fmt"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/sqlinline"
)

func (s *Store) AddAudioLayer(ctx context.Context, layer *domain.AudioLayer) error {
	err := s.SQL.QueryRow(ctx, sqlinline.QInsertAudioLayer,
		layer.ID, layer.JobID, layer.LayerIndex, layer.StorageKey,
		layer.FileName, layer.FileSize, layer.Duration,
		layer.Volume, layer.Muted, layer.FadeIn, layer.FadeOut,
	).Scan(&layer.ID)
	if err != nil {
		return fmt.Errorf("insert audio layer: %w", err)
	}
	return nil
}

// AudioLayers returns a job's overlay tracks ordered by layer index.
func (s *Store) AudioLayers(ctx context.Context, jobID string) ([]domain.AudioLayer, error) {
	rows, err := s.SQL.Query(ctx, sqlinline.QAudioLayersByJob, jobID)
	if err != nil {
		return nil, fmt.Errorf("audio layers: %w", err)
	}
	defer rows.Close()

	var layers []domain.AudioLayer
	for rows.Next() {
		var l domain.AudioLayer
		if err := rows.Scan(
			&l.ID, &l.JobID, &l.LayerIndex, &l.StorageKey,
			&l.FileName, &l.FileSize, &l.Duration,
			&l.Volume, &l.Muted, &l.FadeIn, &l.FadeOut,
		); err != nil {
			return nil, fmt.Errorf("scan audio layer: %w", err)
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (s *Store) NextLayerIndex(ctx context.Context, jobID string) (int, error) {
	var idx int
	if err := s.SQL.QueryRow(ctx, sqlinline.QNextLayerIndex, jobID).Scan(&idx); err != nil {
		return 0, fmt.Errorf("next layer index: %w", err)
	}
	return idx, nil
}

func (s *Store) UpdateAudioLayer(ctx context.Context, layerID, jobID string, volume int, muted bool, fadeIn, fadeOut float64) error {
	var id string
	err := s.SQL.QueryRow(ctx, sqlinline.QUpdateAudioLayer, layerID, jobID, volume, muted, fadeIn, fadeOut).Scan(&id)
	if infra.IsNoRows(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update audio layer: %w", err)
	}
	return nil
}

func (s *Store) DeleteAudioLayer(ctx context.Context, layerID, jobID string) (storageKey string, freed int64, err error) {
	err = s.SQL.QueryRow(ctx, sqlinline.QDeleteAudioLayer, layerID, jobID).Scan(&storageKey, &freed)
	if infra.IsNoRows(err) {
		return "", 0, domain.ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("delete audio layer: %w", err)
	}
	return storageKey, freed, nil
}
