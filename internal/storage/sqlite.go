package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Verification requests
	CREATE TABLE IF NOT EXISTS requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		requester TEXT NOT NULL,
		revealee TEXT NOT NULL,
		payment TEXT NOT NULL,
		expiration INTEGER NOT NULL,
		is_canceled INTEGER NOT NULL DEFAULT 0,
		is_fulfilled INTEGER NOT NULL DEFAULT 0,
		is_human_and_unique INTEGER NOT NULL DEFAULT 0,
		is_kyc_user INTEGER NOT NULL DEFAULT 0,
		kyc_timestamp TEXT NOT NULL DEFAULT '0',
		created_at INTEGER NOT NULL,
		canceled_at INTEGER,
		fulfilled_at INTEGER,
		CHECK (NOT (is_canceled = 1 AND is_fulfilled = 1))
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
		updated_at INTEGER NOT NULL
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
		created_at INTEGER NOT NULL
	);

	-- Request id nonce (single row)
	CREATE TABLE IF NOT EXISTS dispatch_nonce (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);

	-- Event log
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		request_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
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

const sqliteRequestColumns = `id, requester, revealee, payment, expiration,
	is_canceled, is_fulfilled, is_human_and_unique, is_kyc_user, kyc_timestamp,
	created_at, canceled_at, fulfilled_at`

// InsertRequest inserts a request and runs hook before committing
func (s *SQLiteStore) InsertRequest(ctx context.Context, rec *Request, hook TxHook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests WHERE id = ?", rec.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return ErrConflict
	}

	query := `
		INSERT INTO requests (id, requester, revealee, payment, expiration, kyc_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, rec.ID, rec.Requester, rec.Revealee, rec.Payment, rec.Expiration, formatKYC(0), rec.CreatedAt); err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}

	if err := runHook(ctx, tx, hook); err != nil {
		return err
	}

	return tx.Commit()
}

// GetRequest retrieves a request by id
func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteRequestColumns+" FROM requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// RequestExists checks if a request exists
func (s *SQLiteStore) RequestExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

// LatestRequestID returns the most recently created request id for a requester
func (s *SQLiteStore) LatestRequestID(ctx context.Context, requester string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM requests WHERE requester = ? ORDER BY seq DESC LIMIT 1", requester).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// CancelRequest flags a pending request canceled and runs hook before committing
func (s *SQLiteStore) CancelRequest(ctx context.Context, id string, at int64, hook TxHook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE requests SET is_canceled = 1, canceled_at = ?
		WHERE id = ? AND is_canceled = 0 AND is_fulfilled = 0
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
func (s *SQLiteStore) FulfillRequest(ctx context.Context, id string, f Fulfillment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET is_fulfilled = 1, is_human_and_unique = ?, is_kyc_user = ?, kyc_timestamp = ?, fulfilled_at = ?
		WHERE id = ? AND is_canceled = 0 AND is_fulfilled = 0
	`, f.IsHumanAndUnique, f.IsKYCUser, formatKYC(f.KYCTimestamp), f.At, id)
	if err != nil {
		return fmt.Errorf("fulfilling request: %w", err)
	}
	return expectOneRow(res)
}

// GetSettings retrieves the admin settings
func (s *SQLiteStore) GetSettings(ctx context.Context) (*Settings, error) {
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
func (s *SQLiteStore) SeedSettings(ctx context.Context, st *Settings) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO settings (id, owner, oracle, payment, link, sign_up_url, job_id, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
	`, st.Owner, st.Oracle, st.Payment, st.Link, st.SignUpURL, st.JobID, st.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SaveSettings overwrites the settings row
func (s *SQLiteStore) SaveSettings(ctx context.Context, st *Settings) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE settings SET owner = ?, oracle = ?, payment = ?, link = ?, sign_up_url = ?, job_id = ?, updated_at = ?
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
func (s *SQLiteStore) NextNonce(ctx context.Context) (uint64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO dispatch_nonce (id, value) VALUES (1, 1)
		ON CONFLICT(id) DO UPDATE SET value = dispatch_nonce.value + 1
		RETURNING value
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advancing nonce: %w", err)
	}
	return uint64(n), nil
}

// RecordDispatch stores an outbound oracle descriptor
func (s *SQLiteStore) RecordDispatch(ctx context.Context, d *Dispatch) error {
	_, err := execerFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO oracle_dispatches (request_id, oracle, job_id, callback, payment, requester, revealee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.RequestID, d.Oracle, d.JobID, d.Callback, d.Payment, d.Requester, d.Revealee, d.CreatedAt)
	return err
}

// GetDispatch retrieves the descriptor dispatched for a request
func (s *SQLiteStore) GetDispatch(ctx context.Context, requestID string) (*Dispatch, error) {
	var d Dispatch
	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, oracle, job_id, callback, payment, requester, revealee, created_at
		FROM oracle_dispatches WHERE request_id = ?
	`, requestID).Scan(&d.RequestID, &d.Oracle, &d.JobID, &d.Callback, &d.Payment, &d.Requester, &d.Revealee, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

// AppendEvent appends an event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = generateID()
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, name, request_id, payload, created_at) VALUES (?, ?, ?, ?, ?)
		RETURNING seq
	`, e.ID, e.Name, e.RequestID, string(e.Payload), e.CreatedAt).Scan(&e.Seq)
}

// ListEvents lists events in append order with cursor-based pagination
func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*PaginatedResult[Event], error) {
	after, err := parseCursor(pagination.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(pagination.Limit)

	query := `SELECT seq, id, name, request_id, payload, created_at FROM events WHERE seq > ?`
	args := []any{after}
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	if filter.RequestID != "" {
		query += ` AND request_id = ?`
		args = append(args, filter.RequestID)
	}
	query += ` ORDER BY seq LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name, address string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, address, created_at) VALUES (?, ?, ?, ?, datetime('now'))", id, hash, name, address)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, address, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.Address, &ak.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, nil
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, address, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.Address, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.String
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ?", id)
	return err
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
