// Package handlers implements the public HTTP API. Handlers depend on the
// SQLExecutor contract rather than a concrete pool so tests can substitute
// in-memory fakes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/yoppiari/loopingflow/internal/credits"
	"github.com/yoppiari/loopingflow/internal/domain"
	"github.com/yoppiari/loopingflow/internal/infra"
	"github.com/yoppiari/loopingflow/internal/middleware"
	"github.com/yoppiari/loopingflow/internal/probe"
	"github.com/yoppiari/loopingflow/internal/progress"
	"github.com/yoppiari/loopingflow/internal/queue"
	"github.com/yoppiari/loopingflow/internal/storage"
	"github.com/yoppiari/loopingflow/internal/store"
)

// Prober measures uploaded media before the record is created.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

type App struct {
	SQL      infra.SQLExecutor
	Logger   zerolog.Logger
	Files    *storage.FileStore
	Queue    *queue.Enqueuer // nil in poll-only deployments
	Progress *progress.Cache // nil without Redis
	Prober   Prober
	Validate *validator.Validate

	MaxUploadBytes int64
}

func NewApp(sql infra.SQLExecutor, logger zerolog.Logger) *App {
	return &App{
		SQL:      sql,
		Logger:   logger,
		Validate: validator.New(),
	}
}

func (a *App) store() *store.Store {
	return store.New(a.SQL)
}

func (a *App) credits() *credits.Ledger {
	return credits.NewLedger(a.SQL)
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]any{
		"error":   slug,
		"message": message,
	})
}

// domainError translates sentinel errors into API responses. Anything
// unrecognized is logged and reported as an internal error without leaking
// detail.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this render")
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusRequestEntityTooLarge, "quota_exceeded", "storage quota exceeded")
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
