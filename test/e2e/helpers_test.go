//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/revealer/internal/config"
	"github.com/pendergraft/revealer/internal/server"
	"github.com/pendergraft/revealer/internal/storage"
	"github.com/pendergraft/revealer/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	callbackSecret   = "e2e-callback-secret"
	expirationWindow = 2 * time.Second
)

var (
	ownerAddress  = common.HexToAddress("0x000000000000000000000000000000000000000f")
	goerliOracle  = common.HexToAddress("0xB9756312523826A566e222a34793E414A81c88E1")
	defaultJobID  = "14f849816fac426abda2992cbf47d2cd"
	defaultAmount = "100000000000000000"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("revealer"),
		postgres.WithUsername("revealer"),
		postgres.WithPassword("revealer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the revealer server in-process against Postgres, with
// API key auth, the development ledger and the local dispatcher.
func startServerE(ctx context.Context, connString string) (*httptest.Server, storage.Store, error) {
	env := map[string]string{
		"DATABASE_URL":              connString,
		"AUTH_TYPE":                 "api-key",
		"LOG_LEVEL":                 "debug",
		"LOG_FORMAT":                "text",
		"RATE_LIMIT_ENABLED":        "false",
		"METRICS_ENABLED":           "false",
		"OWNER_ADDRESS":             ownerAddress.Hex(),
		"ORACLE_CALLBACK_SECRET":    callbackSecret,
		"REQUEST_EXPIRATION_WINDOW": expirationWindow.String(),
	}
	for k, v := range env {
		if err := os.Setenv(k, v); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	srv, err := server.New(ctx, cfg, store, logger, server.Backends{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server: %w", err)
	}

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// newOracleClient creates a client that signs callbacks as the preset oracle
func newOracleClient(testServer *httptest.Server) *client.Client {
	return client.New(testServer.URL, "", client.WithOracle(goerliOracle, callbackSecret))
}

// createTestAPIKey creates a key bound to address using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string, address common.Address) string {
	key, err := store.CreateAPIKey(context.Background(), name, address.Hex())
	require.NoError(t, err, "Failed to create API key")
	return key
}

// fund mints and approves enough for n requests at the preset payment
func fund(t *testing.T, c *client.Client, n int64) {
	t.Helper()
	ctx := context.Background()
	amount := fmt.Sprintf("%d00000000000000000", n)
	_, err := c.Mint(ctx, amount)
	require.NoError(t, err)
	_, err = c.Approve(ctx, amount)
	require.NoError(t, err)
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
