package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/status"
	"github.com/pendergraft/revealer/internal/storage"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Create(ctx context.Context, p CreateParams, afterCollect storage.TxHook) (*Request, error)
	Cancel(ctx context.Context, caller common.Address, id ident.RequestID) (*Request, error)
	Resolve(ctx context.Context, id ident.RequestID, st status.Status, kycTimestamp uint64) (bool, error)
	Get(ctx context.Context, id ident.RequestID) (*Request, error)
	Exists(ctx context.Context, id ident.RequestID) (bool, error)
	LatestRequestID(ctx context.Context, requester common.Address) (ident.RequestID, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Create(ctx context.Context, p CreateParams, afterCollect storage.TxHook) (*Request, error) {
	start := time.Now()
	req, err := m.next.Create(ctx, p, afterCollect)
	m.logger.Info("Create",
		"requestId", p.ID.Hex(),
		"requester", p.Requester.Hex(),
		"revealee", p.Revealee.Hex(),
		"payment", p.Payment.String(),
		"duration", time.Since(start),
		"error", err,
	)
	return req, err
}

func (m *loggingMiddleware) Cancel(ctx context.Context, caller common.Address, id ident.RequestID) (*Request, error) {
	start := time.Now()
	req, err := m.next.Cancel(ctx, caller, id)
	m.logger.Info("Cancel",
		"requestId", id.Hex(),
		"caller", caller.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return req, err
}

func (m *loggingMiddleware) Resolve(ctx context.Context, id ident.RequestID, st status.Status, kycTimestamp uint64) (bool, error) {
	start := time.Now()
	accepted, err := m.next.Resolve(ctx, id, st, kycTimestamp)
	level := slog.LevelInfo
	if err == nil && !accepted {
		level = slog.LevelWarn
	}
	m.logger.Log(ctx, level, "Resolve",
		"requestId", id.Hex(),
		"status", st.String(),
		"kycTimestamp", kycTimestamp,
		"accepted", accepted,
		"duration", time.Since(start),
		"error", err,
	)
	return accepted, err
}

func (m *loggingMiddleware) Get(ctx context.Context, id ident.RequestID) (*Request, error) {
	start := time.Now()
	req, err := m.next.Get(ctx, id)
	m.logger.Debug("Get",
		"requestId", id.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return req, err
}

func (m *loggingMiddleware) Exists(ctx context.Context, id ident.RequestID) (bool, error) {
	start := time.Now()
	ok, err := m.next.Exists(ctx, id)
	m.logger.Debug("Exists",
		"requestId", id.Hex(),
		"exists", ok,
		"duration", time.Since(start),
		"error", err,
	)
	return ok, err
}

func (m *loggingMiddleware) LatestRequestID(ctx context.Context, requester common.Address) (ident.RequestID, error) {
	start := time.Now()
	id, err := m.next.LatestRequestID(ctx, requester)
	m.logger.Debug("LatestRequestID",
		"requester", requester.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return id, err
}
