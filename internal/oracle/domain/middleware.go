package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/ident"
	requestsdomain "github.com/pendergraft/revealer/internal/requests/domain"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	RequestStatus(ctx context.Context, requester, revealee common.Address) (*requestsdomain.Request, error)
	Fulfill(ctx context.Context, oracle common.Address, id ident.RequestID, ordinal, kycTimestamp uint64) (bool, error)
	SetJobID(ctx context.Context, caller common.Address, jobID string) error
	Dispatch(ctx context.Context, id ident.RequestID) (*Descriptor, error)
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

func (m *loggingMiddleware) RequestStatus(ctx context.Context, requester, revealee common.Address) (*requestsdomain.Request, error) {
	start := time.Now()
	req, err := m.next.RequestStatus(ctx, requester, revealee)
	attrs := []any{
		"requester", requester.Hex(),
		"revealee", revealee.Hex(),
		"duration", time.Since(start),
		"error", err,
	}
	if req != nil {
		attrs = append(attrs, "requestId", req.ID.Hex())
	}
	m.logger.Info("RequestStatus", attrs...)
	return req, err
}

func (m *loggingMiddleware) Fulfill(ctx context.Context, oracle common.Address, id ident.RequestID, ordinal, kycTimestamp uint64) (bool, error) {
	start := time.Now()
	accepted, err := m.next.Fulfill(ctx, oracle, id, ordinal, kycTimestamp)
	m.logger.Info("Fulfill",
		"oracle", oracle.Hex(),
		"requestId", id.Hex(),
		"status", ordinal,
		"accepted", accepted,
		"duration", time.Since(start),
		"error", err,
	)
	return accepted, err
}

func (m *loggingMiddleware) SetJobID(ctx context.Context, caller common.Address, jobID string) error {
	return m.next.SetJobID(ctx, caller, jobID)
}

func (m *loggingMiddleware) Dispatch(ctx context.Context, id ident.RequestID) (*Descriptor, error) {
	start := time.Now()
	d, err := m.next.Dispatch(ctx, id)
	m.logger.Debug("Dispatch",
		"requestId", id.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}
