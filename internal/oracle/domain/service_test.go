package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admindomain "github.com/pendergraft/revealer/internal/admin/domain"
	"github.com/pendergraft/revealer/internal/escrow"
	"github.com/pendergraft/revealer/internal/events"
	"github.com/pendergraft/revealer/internal/ident"
	requestsdomain "github.com/pendergraft/revealer/internal/requests/domain"
	"github.com/pendergraft/revealer/internal/status"
	"github.com/pendergraft/revealer/internal/storage"
	"github.com/pendergraft/revealer/internal/token"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	revealee = common.HexToAddress("0x000000000000000000000000000000000000dead")
	consumer = common.HexToAddress("0x00000000000000000000000000000000c0ffee00")
	oracle   = common.HexToAddress("0xB9756312523826A566e222a34793E414A81c88E1")
	link     = common.HexToAddress("0x326C977E6efc84E512bB9C30f76E30c160eD06FB")
	t0       = time.Unix(1_700_000_000, 0)
)

const jobID = "14f849816fac426abda2992cbf47d2cd"

type fakeDispatcher struct {
	sent []Descriptor
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, d Descriptor) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, d)
	return nil
}

type harness struct {
	store      *storage.SQLiteStore
	ledger     *token.Ledger
	admin      interface{ SetOraclePayment(context.Context, common.Address, *big.Int) error }
	registry   Registry
	dispatcher *fakeDispatcher
	gw         *gateway
	clock      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "revealer.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	h := &harness{store: store, ledger: token.NewLedger(), dispatcher: &fakeDispatcher{}, clock: t0}

	admin := admindomain.NewService(store)
	id, err := ident.NewJobID(jobID)
	require.NoError(t, err)
	_, err = admin.Seed(ctx, admindomain.Settings{
		Owner:     owner,
		Oracle:    oracle,
		Payment:   big.NewInt(100),
		Link:      link,
		SignUpURL: "https://wallet.everest.org",
		JobID:     id,
	})
	require.NoError(t, err)
	h.admin = admin

	pub := events.NewMulti(logger, events.Sink{Name: "store", Publisher: events.NewStorePublisher(store)})
	h.registry = requestsdomain.NewRegistry(store, escrow.New(h.ledger, admin, consumer), pub,
		requestsdomain.WithClock(func() time.Time { return h.clock }),
	)
	h.gw = NewGateway(admin, h.registry, store, h.dispatcher, consumer)
	h.gw.now = func() time.Time { return h.clock }

	h.ledger.Mint(link, alice, big.NewInt(1000))
	h.ledger.Approve(link, alice, consumer, big.NewInt(1000))
	return h
}

func (h *harness) balance(addr common.Address) string {
	return h.ledger.BalanceOf(link, addr).String()
}

func TestRequestStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)
	assert.Equal(t, ident.DeriveRequestID(consumer, 1), req.ID)
	assert.Equal(t, "100", req.Payment.String())
	assert.Equal(t, "900", h.balance(alice))
	assert.Equal(t, "100", h.balance(consumer))

	require.Len(t, h.dispatcher.sent, 1)
	d := h.dispatcher.sent[0]
	assert.Equal(t, req.ID, d.RequestID)
	assert.Equal(t, oracle, d.Oracle)
	assert.Equal(t, jobID, d.JobID)
	assert.Equal(t, consumer, d.CallbackAddress)
	assert.Equal(t, "fulfill(bytes32,uint8,uint256)", d.CallbackFunction)
	assert.Len(t, d.CallbackSelector, 10)
	assert.Equal(t, "100", d.Payment)

	recorded, err := h.gw.Dispatch(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, d.CallbackSelector, recorded.CallbackSelector)
	assert.Equal(t, alice, recorded.Requester)

	second, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, second.ID)

	evts, err := h.store.ListEvents(ctx, storage.EventFilter{Name: "Requested"}, storage.PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, evts.Data, 2)
}

func TestRequestStatus_UsesCurrentPayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.admin.SetOraclePayment(ctx, owner, big.NewInt(250)))

	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)
	assert.Equal(t, "250", req.Payment.String())
	assert.Equal(t, "750", h.balance(alice))
}

func TestRequestStatus_PaymentFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.gw.RequestStatus(ctx, bob, revealee)
	assert.ErrorIs(t, err, requestsdomain.ErrPaymentFailed)
	assert.Empty(t, h.dispatcher.sent, "nothing is dispatched without payment")

	id := ident.DeriveRequestID(consumer, 1)
	exists, err := h.store.RequestExists(ctx, id.Hex())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, "0", h.balance(consumer))

	_, err = h.gw.Dispatch(ctx, id)
	assert.ErrorIs(t, err, ErrNotDispatched)
	_, err = h.gw.Fulfill(ctx, oracle, id, uint64(status.HumanAndUnique), 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRequestStatus_DispatchFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.dispatcher.err = errors.New("broker down")

	_, err := h.gw.RequestStatus(ctx, alice, revealee)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Equal(t, "1000", h.balance(alice))
	assert.Equal(t, "0", h.balance(consumer))

	exists, err := h.store.RequestExists(ctx, ident.DeriveRequestID(consumer, 1).Hex())
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = h.gw.Dispatch(ctx, ident.DeriveRequestID(consumer, 1))
	assert.ErrorIs(t, err, ErrNotDispatched)

	h.dispatcher.err = nil
	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)
	assert.Equal(t, ident.DeriveRequestID(consumer, 2), req.ID, "ids are never reused")
}

func TestFulfill_Authorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)

	_, err = h.gw.Fulfill(ctx, bob, req.ID, uint64(status.HumanAndUnique), 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.gw.Fulfill(ctx, oracle, ident.DeriveRequestID(consumer, 42), uint64(status.HumanAndUnique), 0)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.gw.Fulfill(ctx, oracle, req.ID, 3, 0)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	stored, err := h.store.GetRequest(ctx, req.ID.Hex())
	require.NoError(t, err)
	assert.False(t, stored.IsFulfilled)
}

// KYC result delivered by the dispatched oracle through the real store.
func TestFulfill_KYCUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)

	accepted, err := h.gw.Fulfill(ctx, oracle, req.ID, uint64(status.KYCUser), 0)
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = h.gw.Fulfill(ctx, oracle, req.ID, uint64(status.KYCUser), 1658845449)
	require.NoError(t, err)
	assert.True(t, accepted)

	stored, err := h.store.GetRequest(ctx, req.ID.Hex())
	require.NoError(t, err)
	assert.True(t, stored.IsKYCUser)
	assert.True(t, stored.IsHumanAndUnique)
	assert.Equal(t, uint64(1658845449), stored.KYCTimestamp)

	_, err = h.gw.Fulfill(ctx, oracle, req.ID, uint64(status.KYCUser), 1658845449)
	assert.ErrorIs(t, err, requestsdomain.ErrAlreadyResolved)

	evts, err := h.store.ListEvents(ctx, storage.EventFilter{Name: "Fulfilled"}, storage.PaginationParams{})
	require.NoError(t, err)
	assert.Len(t, evts.Data, 1)
}

// HUMAN_AND_UNIQUE accepted only without a KYC timestamp.
func TestFulfill_HumanAndUnique(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)

	accepted, err := h.gw.Fulfill(ctx, oracle, req.ID, uint64(status.HumanAndUnique), 7)
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = h.gw.Fulfill(ctx, oracle, req.ID, uint64(status.HumanAndUnique), 0)
	require.NoError(t, err)
	assert.True(t, accepted)

	stored, err := h.store.GetRequest(ctx, req.ID.Hex())
	require.NoError(t, err)
	assert.True(t, stored.IsHumanAndUnique)
	assert.False(t, stored.IsKYCUser)
	assert.Zero(t, stored.KYCTimestamp)
}

// Cancel after expiry refunds the requester, on the real store.
func TestCancelAfterExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)

	canceler := h.registry.(interface {
		Cancel(context.Context, common.Address, ident.RequestID) (*requestsdomain.Request, error)
	})

	h.clock = t0.Add(299 * time.Second)
	_, err = canceler.Cancel(ctx, alice, req.ID)
	assert.ErrorIs(t, err, requestsdomain.ErrNotYetExpired)

	h.clock = t0.Add(300 * time.Second)
	_, err = canceler.Cancel(ctx, alice, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", h.balance(alice))
	assert.Equal(t, "0", h.balance(consumer))

	_, err = canceler.Cancel(ctx, alice, req.ID)
	assert.ErrorIs(t, err, requestsdomain.ErrAlreadyResolved)

	_, err = h.gw.Fulfill(ctx, oracle, req.ID, uint64(status.NotFound), 0)
	assert.ErrorIs(t, err, requestsdomain.ErrAlreadyResolved)
}

// Job id changes are owner-only and length-checked.
func TestSetJobID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	err := h.gw.SetJobID(ctx, owner, "7223acbd01654282865b678924126013a")
	assert.ErrorIs(t, err, ident.ErrIncorrectLength)

	req, err := h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)
	d, err := h.gw.Dispatch(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, jobID, d.JobID)

	err = h.gw.SetJobID(ctx, alice, "827352c4d8684571b4605f9022853ddf")
	assert.ErrorIs(t, err, admindomain.ErrNotOwner)

	require.NoError(t, h.gw.SetJobID(ctx, owner, "827352c4d8684571b4605f9022853ddf"))
	req, err = h.gw.RequestStatus(ctx, alice, revealee)
	require.NoError(t, err)
	assert.Equal(t, "827352c4d8684571b4605f9022853ddf", h.dispatcher.sent[len(h.dispatcher.sent)-1].JobID)
}

func TestDispatch_NotDispatched(t *testing.T) {
	h := newHarness(t)
	_, err := h.gw.Dispatch(context.Background(), ident.DeriveRequestID(consumer, 5))
	assert.ErrorIs(t, err, ErrNotDispatched)
}
