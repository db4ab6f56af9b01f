package domain

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Seed(ctx context.Context, initial Settings) (bool, error)
	Get(ctx context.Context) (*Settings, error)
	TokenAddress(ctx context.Context) (common.Address, error)
	SetOracle(ctx context.Context, caller, oracle common.Address) error
	SetOraclePayment(ctx context.Context, caller common.Address, payment *big.Int) error
	SetLink(ctx context.Context, caller, link common.Address) error
	SetSignUpURL(ctx context.Context, caller common.Address, url string) error
	SetJobID(ctx context.Context, caller common.Address, jobID string) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
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

func (m *loggingMiddleware) Seed(ctx context.Context, initial Settings) (bool, error) {
	start := time.Now()
	created, err := m.next.Seed(ctx, initial)
	m.logger.Info("Seed",
		"owner", initial.Owner.Hex(),
		"oracle", initial.Oracle.Hex(),
		"created", created,
		"duration", time.Since(start),
		"error", err,
	)
	return created, err
}

func (m *loggingMiddleware) Get(ctx context.Context) (*Settings, error) {
	start := time.Now()
	s, err := m.next.Get(ctx)
	m.logger.Debug("Get",
		"duration", time.Since(start),
		"error", err,
	)
	return s, err
}

func (m *loggingMiddleware) TokenAddress(ctx context.Context) (common.Address, error) {
	return m.next.TokenAddress(ctx)
}

func (m *loggingMiddleware) SetOracle(ctx context.Context, caller, oracle common.Address) error {
	start := time.Now()
	err := m.next.SetOracle(ctx, caller, oracle)
	m.logSet(ParamOracle, caller, oracle.Hex(), start, err)
	return err
}

func (m *loggingMiddleware) SetOraclePayment(ctx context.Context, caller common.Address, payment *big.Int) error {
	start := time.Now()
	err := m.next.SetOraclePayment(ctx, caller, payment)
	m.logSet(ParamPayment, caller, payment.String(), start, err)
	return err
}

func (m *loggingMiddleware) SetLink(ctx context.Context, caller, link common.Address) error {
	start := time.Now()
	err := m.next.SetLink(ctx, caller, link)
	m.logSet(ParamLink, caller, link.Hex(), start, err)
	return err
}

func (m *loggingMiddleware) SetSignUpURL(ctx context.Context, caller common.Address, url string) error {
	start := time.Now()
	err := m.next.SetSignUpURL(ctx, caller, url)
	m.logSet(ParamSignUpURL, caller, url, start, err)
	return err
}

func (m *loggingMiddleware) SetJobID(ctx context.Context, caller common.Address, jobID string) error {
	start := time.Now()
	err := m.next.SetJobID(ctx, caller, jobID)
	m.logSet(ParamJobID, caller, jobID, start, err)
	return err
}

func (m *loggingMiddleware) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	start := time.Now()
	err := m.next.TransferOwnership(ctx, caller, newOwner)
	m.logSet(ParamOwner, caller, newOwner.Hex(), start, err)
	return err
}

func (m *loggingMiddleware) logSet(param Param, caller common.Address, value string, start time.Time, err error) {
	m.logger.Info("Set",
		"param", param,
		"caller", caller.Hex(),
		"value", value,
		"duration", time.Since(start),
		"error", err,
	)
}
