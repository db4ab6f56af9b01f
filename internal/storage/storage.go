package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/revealer/internal/config"
)

// TxHook runs inside a storage transaction. Returning an error rolls the
// transaction back. Store writes that accept a hook context (RecordDispatch)
// join the transaction.
type TxHook func(ctx context.Context) error

// RequestStore handles verification request records.
// Requests are never deleted.
type RequestStore interface {
	// InsertRequest inserts rec and runs hook before committing. The row is
	// only visible if hook succeeds.
	InsertRequest(ctx context.Context, rec *Request, hook TxHook) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	RequestExists(ctx context.Context, id string) (bool, error)
	LatestRequestID(ctx context.Context, requester string) (string, error)
	// CancelRequest flags a pending request canceled, then runs hook before
	// committing. Returns ErrConflict if the request is no longer pending.
	CancelRequest(ctx context.Context, id string, at int64, hook TxHook) error
	// FulfillRequest records a fulfillment on a pending request. Returns
	// ErrConflict if the request is no longer pending.
	FulfillRequest(ctx context.Context, id string, f Fulfillment) error
}

// SettingsStore handles the single admin settings row.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*Settings, error)
	// SeedSettings stores s only if no settings exist yet.
	SeedSettings(ctx context.Context, s *Settings) (created bool, err error)
	SaveSettings(ctx context.Context, s *Settings) error
}

// DispatchStore handles outbound oracle descriptors and the id nonce.
type DispatchStore interface {
	NextNonce(ctx context.Context) (uint64, error)
	// RecordDispatch stores d. Called from a TxHook it is committed or rolled
	// back with the enclosing transaction.
	RecordDispatch(ctx context.Context, d *Dispatch) error
	GetDispatch(ctx context.Context, requestID string) (*Dispatch, error)
}

// EventStore handles the append-only event log.
type EventStore interface {
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name, address string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	RequestStore
	SettingsStore
	DispatchStore
	EventStore
	APIKeyStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Request is a stored verification request. Addresses are checksummed hex,
// ids are 0x-prefixed hex and amounts are base-10 strings.
type Request struct {
	ID               string
	Requester        string
	Revealee         string
	Payment          string
	Expiration       int64
	IsCanceled       bool
	IsFulfilled      bool
	IsHumanAndUnique bool
	IsKYCUser        bool
	KYCTimestamp     uint64
	CreatedAt        int64
	CanceledAt       int64
	FulfilledAt      int64
}

// Fulfillment is the set of fields written by an accepted fulfillment.
type Fulfillment struct {
	IsHumanAndUnique bool
	IsKYCUser        bool
	KYCTimestamp     uint64
	At               int64
}

// Settings is the owner-mutable configuration row.
type Settings struct {
	Owner     string
	Oracle    string
	Payment   string
	Link      string
	SignUpURL string
	JobID     string
	UpdatedAt int64
}

// Dispatch is a recorded outbound oracle descriptor.
type Dispatch struct {
	RequestID string
	Oracle    string
	JobID     string
	Callback  string
	Payment   string
	Requester string
	Revealee  string
	CreatedAt int64
}

// Event is an entry in the event log.
type Event struct {
	Seq       int64
	ID        string
	Name      string
	RequestID string
	Payload   []byte
	CreatedAt int64
}

// EventFilter contains filter options for listing events
type EventFilter struct {
	Name      string
	RequestID string
}

// APIKey represents an API key bound to a caller address
type APIKey struct {
	ID         string
	Name       string
	Address    string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
