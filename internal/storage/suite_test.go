package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0x00000000000000000000000000000000000A11cE"
	bob   = "0x0000000000000000000000000000000000000B0b"
)

func requestID(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func newRequest(n int, requester string) *Request {
	return &Request{
		ID:         requestID(n),
		Requester:  requester,
		Revealee:   bob,
		Payment:    "100000000000000000",
		Expiration: 1_700_000_300,
		CreatedAt:  1_700_000_000,
	}
}

// runStoreSuite exercises behavior every Store implementation must share.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("InsertAndGetRequest", func(t *testing.T) {
		rec := newRequest(1, alice)
		require.NoError(t, store.InsertRequest(ctx, rec, nil))

		got, err := store.GetRequest(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Requester, got.Requester)
		assert.Equal(t, rec.Revealee, got.Revealee)
		assert.Equal(t, rec.Payment, got.Payment)
		assert.Equal(t, rec.Expiration, got.Expiration)
		assert.False(t, got.IsCanceled)
		assert.False(t, got.IsFulfilled)
		assert.Zero(t, got.KYCTimestamp)

		exists, err := store.RequestExists(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("InsertDuplicateRequest", func(t *testing.T) {
		err := store.InsertRequest(ctx, newRequest(1, alice), nil)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("InsertRollsBackOnHookError", func(t *testing.T) {
		boom := errors.New("collect failed")
		rec := newRequest(2, alice)

		err := store.InsertRequest(ctx, rec, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)

		exists, err := store.RequestExists(ctx, rec.ID)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("GetMissingRequest", func(t *testing.T) {
		_, err := store.GetRequest(ctx, requestID(999))
		assert.ErrorIs(t, err, ErrNotFound)

		exists, err := store.RequestExists(ctx, requestID(999))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("LatestRequestID", func(t *testing.T) {
		_, err := store.LatestRequestID(ctx, bob)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.InsertRequest(ctx, newRequest(3, bob), nil))
		require.NoError(t, store.InsertRequest(ctx, newRequest(4, bob), nil))

		id, err := store.LatestRequestID(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, requestID(4), id)
	})

	t.Run("CancelRequest", func(t *testing.T) {
		hookRan := false
		err := store.CancelRequest(ctx, requestID(3), 1_700_000_400, func(context.Context) error {
			hookRan = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, hookRan)

		got, err := store.GetRequest(ctx, requestID(3))
		require.NoError(t, err)
		assert.True(t, got.IsCanceled)
		assert.Equal(t, int64(1_700_000_400), got.CanceledAt)

		err = store.CancelRequest(ctx, requestID(3), 1_700_000_500, nil)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("CancelRollsBackOnHookError", func(t *testing.T) {
		boom := errors.New("refund failed")
		err := store.CancelRequest(ctx, requestID(4), 1_700_000_400, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)

		got, err := store.GetRequest(ctx, requestID(4))
		require.NoError(t, err)
		assert.False(t, got.IsCanceled)
	})

	t.Run("FulfillRequest", func(t *testing.T) {
		f := Fulfillment{IsHumanAndUnique: true, IsKYCUser: true, KYCTimestamp: 1658845449, At: 1_700_000_100}
		require.NoError(t, store.FulfillRequest(ctx, requestID(1), f))

		got, err := store.GetRequest(ctx, requestID(1))
		require.NoError(t, err)
		assert.True(t, got.IsFulfilled)
		assert.True(t, got.IsHumanAndUnique)
		assert.True(t, got.IsKYCUser)
		assert.Equal(t, uint64(1658845449), got.KYCTimestamp)
		assert.Equal(t, int64(1_700_000_100), got.FulfilledAt)

		assert.ErrorIs(t, store.FulfillRequest(ctx, requestID(1), f), ErrConflict)
		assert.ErrorIs(t, store.CancelRequest(ctx, requestID(1), 1_700_000_400, nil), ErrConflict)
	})

	t.Run("FulfillKeepsFullTimestampRange", func(t *testing.T) {
		require.NoError(t, store.InsertRequest(ctx, newRequest(5, alice), nil))
		f := Fulfillment{IsHumanAndUnique: true, IsKYCUser: true, KYCTimestamp: ^uint64(0), At: 1}
		require.NoError(t, store.FulfillRequest(ctx, requestID(5), f))

		got, err := store.GetRequest(ctx, requestID(5))
		require.NoError(t, err)
		assert.Equal(t, ^uint64(0), got.KYCTimestamp)
	})

	t.Run("Settings", func(t *testing.T) {
		_, err := store.GetSettings(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.SaveSettings(ctx, &Settings{}), ErrNotFound)

		seed := &Settings{
			Owner:     alice,
			Oracle:    "0xB9756312523826A566e222a34793E414A81c88E1",
			Payment:   "100000000000000000",
			Link:      "0x326C977E6efc84E512bB9C30f76E30c160eD06FB",
			SignUpURL: "https://wallet.everest.org",
			JobID:     "14f849816fac426abda2992cbf47d2cd",
			UpdatedAt: 1,
		}
		created, err := store.SeedSettings(ctx, seed)
		require.NoError(t, err)
		assert.True(t, created)

		again := *seed
		again.Owner = bob
		created, err = store.SeedSettings(ctx, &again)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := store.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, alice, got.Owner)

		got.Payment = "1"
		got.UpdatedAt = 2
		require.NoError(t, store.SaveSettings(ctx, got))

		got, err = store.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1", got.Payment)
		assert.Equal(t, seed.JobID, got.JobID)
	})

	t.Run("NextNonce", func(t *testing.T) {
		first, err := store.NextNonce(ctx)
		require.NoError(t, err)
		second, err := store.NextNonce(ctx)
		require.NoError(t, err)
		assert.Equal(t, first+1, second)
	})

	t.Run("Dispatch", func(t *testing.T) {
		d := &Dispatch{
			RequestID: requestID(7),
			Oracle:    "0xB9756312523826A566e222a34793E414A81c88E1",
			JobID:     "14f849816fac426abda2992cbf47d2cd",
			Callback:  "fulfill(bytes32,uint8,uint256)",
			Payment:   "100000000000000000",
			Requester: alice,
			Revealee:  bob,
			CreatedAt: 1_700_000_000,
		}
		require.NoError(t, store.RecordDispatch(ctx, d))

		got, err := store.GetDispatch(ctx, d.RequestID)
		require.NoError(t, err)
		assert.Equal(t, *d, *got)

		_, err = store.GetDispatch(ctx, requestID(8))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DispatchJoinsInsertTransaction", func(t *testing.T) {
		d := &Dispatch{
			RequestID: requestID(20),
			Oracle:    "0xB9756312523826A566e222a34793E414A81c88E1",
			JobID:     "14f849816fac426abda2992cbf47d2cd",
			Callback:  "fulfill(bytes32,uint8,uint256)",
			Payment:   "1",
			Requester: alice,
			Revealee:  bob,
			CreatedAt: 1_700_000_000,
		}
		boom := errors.New("dispatch failed")
		err := store.InsertRequest(ctx, newRequest(20, alice), func(ctx context.Context) error {
			if err := store.RecordDispatch(ctx, d); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = store.GetDispatch(ctx, d.RequestID)
		assert.ErrorIs(t, err, ErrNotFound, "dispatch rolled back with the request")

		require.NoError(t, store.InsertRequest(ctx, newRequest(20, alice), func(ctx context.Context) error {
			return store.RecordDispatch(ctx, d)
		}))
		got, err := store.GetDispatch(ctx, d.RequestID)
		require.NoError(t, err)
		assert.Equal(t, alice, got.Requester)
	})

	t.Run("Events", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			name := "Requested"
			if i%2 == 1 {
				name = "Fulfilled"
			}
			payload, _ := json.Marshal(map[string]any{"n": i})
			e := &Event{Name: name, RequestID: requestID(100 + i%2), Payload: payload, CreatedAt: int64(i)}
			require.NoError(t, store.AppendEvent(ctx, e))
			assert.NotEmpty(t, e.ID)
			assert.NotZero(t, e.Seq)
		}

		page, err := store.ListEvents(ctx, EventFilter{}, PaginationParams{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		assert.True(t, page.HasMore)
		assert.Less(t, page.Data[0].Seq, page.Data[1].Seq)

		rest, err := store.ListEvents(ctx, EventFilter{}, PaginationParams{Limit: 10, Cursor: page.NextCursor})
		require.NoError(t, err)
		assert.Len(t, rest.Data, 3)
		assert.False(t, rest.HasMore)
		assert.Empty(t, rest.NextCursor)

		fulfilled, err := store.ListEvents(ctx, EventFilter{Name: "Fulfilled"}, PaginationParams{})
		require.NoError(t, err)
		assert.Len(t, fulfilled.Data, 2)

		byRequest, err := store.ListEvents(ctx, EventFilter{RequestID: requestID(100)}, PaginationParams{})
		require.NoError(t, err)
		assert.Len(t, byRequest.Data, 3)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(byRequest.Data[0].Payload, &decoded))
		assert.EqualValues(t, 0, decoded["n"])

		_, err = store.ListEvents(ctx, EventFilter{}, PaginationParams{Cursor: "abc"})
		assert.Error(t, err)
	})

	t.Run("APIKeys", func(t *testing.T) {
		key, err := store.CreateAPIKey(ctx, "alice-laptop", alice)
		require.NoError(t, err)
		assert.Contains(t, key, "rv_key_")

		ak, err := store.ValidateAPIKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "alice-laptop", ak.Name)
		assert.Equal(t, alice, ak.Address)

		keys, err := store.ListAPIKeys(ctx)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, alice, keys[0].Address)

		require.NoError(t, store.RevokeAPIKey(ctx, ak.ID))
		_, err = store.ValidateAPIKey(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
