package store

import (
	"context"
	"fmt"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/sqlinline"
)

func (s *Store) CreateAsset(ctx context.Context, asset *domain.MediaAsset) error {
	err := s.SQL.QueryRow(ctx, sqlinline.QInsertAsset,
		asset.ID, asset.UserID, string(asset.Kind), asset.StorageKey,
		asset.FileName, asset.MimeType, asset.FileSize,
		asset.Duration, asset.Width, asset.Height, asset.HasAudio,
	).Scan(&asset.ID, &asset.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *Store) AssetForUser(ctx context.Context, assetID, userID string) (*domain.MediaAsset, error) {
	return scanAsset(s.SQL.QueryRow(ctx, sqlinline.QAssetByID, assetID, userID))
}

func (s *Store) Asset(ctx context.Context, assetID string) (*domain.MediaAsset, error) {
	return scanAsset(s.SQL.QueryRow(ctx, sqlinline.QAssetByIDAny, assetID))
}

// CacheProbe stores probe results on the asset record so repeat renders of
// the same source skip the probe subprocess.
func (s *Store) CacheProbe(ctx context.Context, assetID string, duration float64, width, height int, hasAudio bool) error {
	if _, err := s.SQL.Exec(ctx, sqlinline.QCacheAssetDuration, assetID, duration, width, height, hasAudio); err != nil {
		return fmt.Errorf("cache probe: %w", err)
	}
	return nil
}

// DeleteAsset removes the record and reports the freed bytes for quota
// release. The storage file is the caller's to remove.
func (s *Store) DeleteAsset(ctx context.Context, assetID, userID string) (storageKey string, freed int64, err error) {
	err = s.SQL.QueryRow(ctx, sqlinline.QDeleteAsset, assetID, userID).Scan(&storageKey, &freed)
	if infra.IsNoRows(err) {
		return "", 0, domain.ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("delete asset: %w", err)
	}
	return storageKey, freed, nil
}

func scanAsset(row rowScanner) (*domain.MediaAsset, error) {
	var a domain.MediaAsset
	var kind string
	err := row.Scan(
		&a.ID, &a.UserID, &kind, &a.StorageKey, &a.FileName, &a.MimeType,
		&a.FileSize, &a.Duration, &a.Width, &a.Height, &a.HasAudio, &a.CreatedAt,
	)
	if infra.IsNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	a.Kind = domain.AssetKind(kind)
	return &a, nil
}
