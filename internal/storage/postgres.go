package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Verification requests
	CREATE TABLE IF NOT EXISTS requests (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		requester TEXT NOT NULL,
		revealee TEXT NOT NULL,
		payment TEXT NOT NULL,
		expiration BIGINT NOT NULL,
		is_canceled BOOLEAN NOT NULL DEFAULT FALSE,
		is_fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
		is_human_and_unique BOOLEAN NOT NULL DEFAULT FALSE,
		is_kyc_user BOOLEAN NOT NULL DEFAULT FALSE,
		kyc_timestamp TEXT NOT NULL DEFAULT '0',
		created_at BIGINT NOT NULL,
		canceled_at BIGINT,
		fulfilled_at BIGINT,
		CHECK (NOT (is_canceled AND is_fulfilled))
	);

	-- Admin settings (single row)
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		owner TEXT NOT NULL,
		oracle TEXT NOT NULL,
		payment TEXT NOT NULL,
		link TEXT NOT NULL,
		sign_up_url TEXT NOT NULL,
		job_id TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	-- Outbound oracle descriptors
	CREATE TABLE IF NOT EXISTS oracle_dispatches (
		request_id TEXT PRIMARY KEY,
		oracle TEXT NOT NULL,
		job_id TEXT NOT NULL,
		callback TEXT NOT NULL,
		payment TEXT NOT NULL,
		requester TEXT NOT NULL,
		revealee TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);

	-- Request id nonce (single row)
	CREATE TABLE IF NOT EXISTS dispatch_nonce (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value BIGINT NOT NULL
	);

	-- Event log
	CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		name TEXT NOT NULL,
		request_id TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at BIGINT NOT NULL
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_requests_requester ON requests(requester, seq);
	CREATE INDEX IF NOT EXISTS idx_events_request_id ON events(request_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

const postgresRequestColumns = `id, requester, revealee, payment, expiration,
	is_canceled, is_fulfilled, is_human_and_unique, is_kyc_user, kyc_timestamp,
	created_at, canceled_at, fulfilled_at`

// InsertRequest inserts a request and runs hook before committing
func (s *PostgresStore) InsertRequest(ctx context.Context, rec *Request, hook TxHook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO requests (id, requester, revealee, payment, expiration, kyc_timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, query, rec.ID, rec.Requester, rec.Revealee, rec.Payment, rec.Expiration, formatKYC(0), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	if err := runHook(ctx, tx, hook); err != nil {
		return err
	}

	return tx.Commit()
}

// GetRequest retrieves a request by id
func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postgresRequestColumns+" FROM requests WHERE id = $1", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// RequestExists checks if a request exists
func (s *PostgresStore) RequestExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM requests WHERE id = $1)", id).Scan(&exists)
	return exists, err
}

// LatestRequestID returns the most recently created request id for a requester
func (s *PostgresStore) LatestRequestID(ctx context.Context, requester string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM requests WHERE requester = $1 ORDER BY seq DESC LIMIT 1", requester).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// CancelRequest flags a pending request canceled and runs hook before committing
func (s *PostgresStore) CancelRequest(ctx context.Context, id string, at int64, hook TxHook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE requests SET is_canceled = TRUE, canceled_at = $1
		WHERE id = $2 AND NOT is_canceled AND NOT is_fulfilled
	`, at, id)
	if err != nil {
		return fmt.Errorf("canceling request: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	if err := runHook(ctx, tx, hook); err != nil {
		return err
	}

	return tx.Commit()
}

// FulfillRequest records a fulfillment on a pending request
func (s *PostgresStore) FulfillRequest(ctx context.Context, id string, f Fulfillment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET is_fulfilled = TRUE, is_human_and_unique = $1, is_kyc_user = $2, kyc_timestamp = $3, fulfilled_at = $4
		WHERE id = $5 AND NOT is_canceled AND NOT is_fulfilled
	`, f.IsHumanAndUnique, f.IsKYCUser, formatKYC(f.KYCTimestamp), f.At, id)
	if err != nil {
		return fmt.Errorf("fulfilling request: %w", err)
	}
	return expectOneRow(res)
}

// GetSettings retrieves the admin settings
func (s *PostgresStore) GetSettings(ctx context.Context) (*Settings, error) {
	var st Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, oracle, payment, link, sign_up_url, job_id, updated_at FROM settings WHERE id = 1
	`).Scan(&st.Owner, &st.Oracle, &st.Payment, &st.Link, &st.SignUpURL, &st.JobID, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &st, err
}

// SeedSettings stores the settings row if none exists
func (s *PostgresStore) SeedSettings(ctx context.Context, st *Settings) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, owner, oracle, payment, link, sign_up_url, job_id, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, st.Owner, st.Oracle, st.Payment, st.Link, st.SignUpURL, st.JobID, st.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SaveSettings overwrites the settings row
func (s *PostgresStore) SaveSettings(ctx context.Context, st *Settings) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settings SET owner = $1, oracle = $2, payment = $3, link = $4, sign_up_url = $5, job_id = $6, updated_at = $7
		WHERE id = 1
	`, st.Owner, st.Oracle, st.Payment, st.Link, st.SignUpURL, st.JobID, st.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextNonce advances and returns the dispatch nonce
func (s *PostgresStore) NextNonce(ctx context.Context) (uint64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO dispatch_nonce (id, value) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET value = dispatch_nonce.value + 1
		RETURNING value
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advancing nonce: %w", err)
	}
	return uint64(n), nil
}

// RecordDispatch stores an outbound oracle descriptor
func (s *PostgresStore) RecordDispatch(ctx context.Context, d *Dispatch) error {
	_, err := execerFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO oracle_dispatches (request_id, oracle, job_id, callback, payment, requester, revealee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.RequestID, d.Oracle, d.JobID, d.Callback, d.Payment, d.Requester, d.Revealee, d.CreatedAt)
	return err
}

// GetDispatch retrieves the descriptor dispatched for a request
func (s *PostgresStore) GetDispatch(ctx context.Context, requestID string) (*Dispatch, error) {
	var d Dispatch
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, oracle, job_id, callback, payment, requester, revealee, created_at
		FROM oracle_dispatches WHERE request_id = $1
	`, requestID).Scan(&d.RequestID, &d.Oracle, &d.JobID, &d.Callback, &d.Payment, &d.Requester, &d.Revealee, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

// AppendEvent appends an event to the log
func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, name, request_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`, e.ID, e.Name, e.RequestID, string(e.Payload), e.CreatedAt).Scan(&e.Seq)
}

// ListEvents lists events in append order with cursor-based pagination
func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error) {
	after, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	query := `
		SELECT seq, id::text, name, request_id, payload::text, created_at FROM events
		WHERE seq > $1
		  AND ($2 = '' OR name = $2)
		  AND ($3 = '' OR request_id = $3)
		ORDER BY seq
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, after, filter.Name, filter.RequestID, limit+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Name, &e.RequestID, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginateEvents(events, limit), nil
}

// CreateAPIKey creates a new API key bound to an address
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name, address string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, address) VALUES ($1, $2, $3, $4)", id, hash, name, address)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, address, created_at FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.Address, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ak.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, address, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var createdAt time.Time
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.Address, &createdAt, &lastUsed); err != nil {
			return nil, err
		}
		k.CreatedAt = createdAt.Format("2006-01-02 15:04:05")
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.Time.Format("2006-01-02 15:04:05")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1", id)
	return err
}
