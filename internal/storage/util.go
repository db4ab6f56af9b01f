package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new API key
func generateAPIKey() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return fmt.Sprintf("rv_key_%s", hex.EncodeToString(b))
}

// hashAPIKey hashes an API key for storage
func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// pageLimit clamps a requested page size.
func pageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

// parseCursor decodes an event sequence cursor. An empty cursor starts at the beginning.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("%w %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

// kycTimestamps are stored as decimal text so the full uint64 range survives
// drivers that reject unsigned values with the high bit set.
func formatKYC(ts uint64) string {
	return strconv.FormatUint(ts, 10)
}

func parseKYC(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func nullInt(n sql.NullInt64) int64 {
	if n.Valid {
		return n.Int64
	}
	return 0
}

type txKey struct{}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// runHook calls hook with a context carrying tx, so writes the hook makes
// through the store join the transaction.
func runHook(ctx context.Context, tx *sql.Tx, hook TxHook) error {
	if hook == nil {
		return nil
	}
	return hook(context.WithValue(ctx, txKey{}, tx))
}

// execerFor returns the transaction carried by ctx, or db outside a hook.
func execerFor(ctx context.Context, db *sql.DB) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var r Request
	var kyc string
	var canceledAt, fulfilledAt sql.NullInt64
	if err := row.Scan(
		&r.ID, &r.Requester, &r.Revealee, &r.Payment, &r.Expiration,
		&r.IsCanceled, &r.IsFulfilled, &r.IsHumanAndUnique, &r.IsKYCUser, &kyc,
		&r.CreatedAt, &canceledAt, &fulfilledAt,
	); err != nil {
		return nil, err
	}
	ts, err := parseKYC(kyc)
	if err != nil {
		return nil, fmt.Errorf("parsing kyc timestamp: %w", err)
	}
	r.KYCTimestamp = ts
	r.CanceledAt = nullInt(canceledAt)
	r.FulfilledAt = nullInt(fulfilledAt)
	return &r, nil
}

// paginateEvents trims the look-ahead row and sets the next cursor.
func paginateEvents(events []Event, limit int) *PaginatedResult[Event] {
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	var next string
	if hasMore && len(events) > 0 {
		next = strconv.FormatInt(events[len(events)-1].Seq, 10)
	}
	return &PaginatedResult[Event]{Data: events, HasMore: hasMore, NextCursor: next}
}
