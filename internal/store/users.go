package store

import (
	"context"
	"fmt"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/sqlinline"
)

func (s *Store) User(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := s.SQL.QueryRow(ctx, sqlinline.QUserByID, userID).Scan(
		&u.ID, &u.Email, &u.CreditBalance, &u.StorageUsed, &u.StorageQuota, &u.CreatedAt,
	)
	if infra.IsNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

// ReserveStorage admits size bytes against the user's quota, or returns
// ErrQuotaExceeded without changing anything.
func (s *Store) ReserveStorage(ctx context.Context, userID string, size int64) error {
	var used int64
	err := s.SQL.QueryRow(ctx, sqlinline.QReserveStorage, userID, size).Scan(&used)
	if infra.IsNoRows(err) {
		return domain.ErrQuotaExceeded
	}
	if err != nil {
		return fmt.Errorf("reserve storage: %w", err)
	}
	return nil
}

func (s *Store) ReleaseStorage(ctx context.Context, userID string, size int64) error {
	var used int64
	err := s.SQL.QueryRow(ctx, sqlinline.QReleaseStorage, userID, size).Scan(&used)
	if infra.IsNoRows(err) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("release storage: %w", err)
	}
	return nil
}
