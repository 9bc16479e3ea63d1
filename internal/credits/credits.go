// Package credits meters render spend against user balances. Every balance
// change goes through the ledger so the audit trail stays complete.
package credits

import (
	"context"
	"fmt"

	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/sqlinline"
)

// Gateway is the balance contract the intake and orchestrator depend on.
// Debit returns the remaining balance; an insufficient balance surfaces as
// domain.ErrInsufficientCredits with no partial charge.
type Gateway interface {
	Debit(ctx context.Context, userID string, amount int, reason, jobID string) (int, error)
	Refund(ctx context.Context, userID string, amount int, reason, jobID string) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
}

// Ledger is the postgres-backed Gateway.
type Ledger struct {
	SQL infra.SQLExecutor
}

func NewLedger(sql infra.SQLExecutor) *Ledger {
	return &Ledger{SQL: sql}
}

func (l *Ledger) Debit(ctx context.Context, userID string, amount int, reason, jobID string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit amount must be positive", domain.ErrValidation)
	}
	var remaining int
	err := l.SQL.QueryRow(ctx, sqlinline.QDebitCredits, userID, amount, reason, jobID).Scan(&remaining)
	if infra.IsNoRows(err) {
		return 0, domain.ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	return remaining, nil
}

func (l *Ledger) Refund(ctx context.Context, userID string, amount int, reason, jobID string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
	}
	var remaining int
	err := l.SQL.QueryRow(ctx, sqlinline.QRefundCredits, userID, amount, reason, jobID).Scan(&remaining)
	if infra.IsNoRows(err) {
		return 0, fmt.Errorf("refund credits: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("refund credits: %w", err)
	}
	return remaining, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := l.SQL.QueryRow(ctx, sqlinline.QCreditBalance, userID).Scan(&balance)
	if infra.IsNoRows(err) {
		return 0, fmt.Errorf("credit balance: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

// Grant tops up a balance outside the job flow (admin tooling).
func (l *Ledger) Grant(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: grant amount must be positive", domain.ErrValidation)
	}
	var remaining int
	err := l.SQL.QueryRow(ctx, sqlinline.QGrantCredits, userID, amount, reason).Scan(&remaining)
	if infra.IsNoRows(err) {
		return 0, fmt.Errorf("grant credits: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return remaining, nil
}

var _ Gateway = (*Ledger)(nil)
