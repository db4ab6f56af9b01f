package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/revealer/internal/auth"
	"github.com/pendergraft/revealer/internal/ident"
	oracledomain "github.com/pendergraft/revealer/internal/oracle/domain"
	"github.com/pendergraft/revealer/internal/requests/domain"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	revealee = common.HexToAddress("0x000000000000000000000000000000000000dead")
	t0       = time.Unix(1_700_000_000, 0)
)

// mockService implements Service and Gateway for testing
type mockService struct {
	requests  map[ident.RequestID]*domain.Request
	latest    map[common.Address]ident.RequestID
	createErr error
	nonce     uint64
}

func newMockService() *mockService {
	return &mockService{
		requests: make(map[ident.RequestID]*domain.Request),
		latest:   make(map[common.Address]ident.RequestID),
	}
}

func (m *mockService) RequestStatus(ctx context.Context, requester, revealee common.Address) (*domain.Request, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nonce++
	req := &domain.Request{
		ID:         common.BigToHash(new(big.Int).SetUint64(m.nonce)),
		Requester:  requester,
		Revealee:   revealee,
		Payment:    big.NewInt(100),
		Expiration: t0.Add(5 * time.Minute),
		CreatedAt:  t0,
	}
	m.requests[req.ID] = req
	m.latest[requester] = req.ID
	return req, nil
}

func (m *mockService) Cancel(ctx context.Context, caller common.Address, id ident.RequestID) (*domain.Request, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.Requester != caller {
		return nil, domain.ErrNotRequestOwner
	}
	if req.Resolved() {
		return nil, domain.ErrAlreadyResolved
	}
	req.IsCanceled = true
	req.CanceledAt = t0.Add(time.Hour)
	return req, nil
}

func (m *mockService) Get(ctx context.Context, id ident.RequestID) (*domain.Request, error) {
	if req, ok := m.requests[id]; ok {
		return req, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockService) Exists(ctx context.Context, id ident.RequestID) (bool, error) {
	_, ok := m.requests[id]
	return ok, nil
}

func (m *mockService) LatestRequestID(ctx context.Context, requester common.Address) (ident.RequestID, error) {
	if id, ok := m.latest[requester]; ok {
		return id, nil
	}
	return ident.RequestID{}, domain.ErrNoRequestsYet
}

func withCaller(caller *common.Address) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if caller != nil {
				r = r.WithContext(auth.WithCaller(r.Context(), *caller))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setupRouter(svc *mockService, caller *common.Address) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc, svc)
	r.Route("/statuses", h.RegisterStatusRoutes)
	r.Route("/requesters", h.RegisterRequesterRoutes)
	r.Route("/requests", func(r chi.Router) {
		h.RegisterReadRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(withCaller(caller))
			h.RegisterWriteRoutes(r)
		})
	})
	return r
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHandler_Status(t *testing.T) {
	router := setupRouter(newMockService(), nil)

	for ordinal, name := range []string{"NOT_FOUND", "KYC_USER", "HUMAN_AND_UNIQUE"} {
		rec := do(router, "GET", fmt.Sprintf("/statuses/%d", ordinal), "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, name, resp.Name)
	}

	for _, bad := range []string{"3", "255", "-1", "x"} {
		rec := do(router, "GET", "/statuses/"+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Equal(t, "INVALID_STATUS", errorCode(t, rec))
	}
}

func TestHandler_CreateAndRead(t *testing.T) {
	svc := newMockService()
	router := setupRouter(svc, &alice)

	rec := do(router, "POST", "/requests/", `{"revealee":"`+revealee.Hex()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, alice.Hex(), created.Requester)
	assert.Equal(t, revealee.Hex(), created.Revealee)
	assert.Equal(t, "pending", created.State)
	assert.Equal(t, "100", created.Payment)
	assert.Empty(t, created.Status)

	rec = do(router, "GET", "/requests/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, "GET", "/requests/"+created.ID+"/exists", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var exists ExistsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exists))
	assert.True(t, exists.Exists)

	rec = do(router, "GET", "/requesters/"+alice.Hex()+"/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest LatestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, created.ID, latest.RequestID)
}

func TestHandler_ReadErrors(t *testing.T) {
	router := setupRouter(newMockService(), nil)
	missing := common.HexToHash("0x99").Hex()

	rec := do(router, "GET", "/requests/"+missing, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "REQUEST_NOT_FOUND", errorCode(t, rec))

	rec = do(router, "GET", "/requests/"+missing+"/exists", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exists":false}`, rec.Body.String())

	rec = do(router, "GET", "/requests/0x1234", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, "GET", "/requesters/"+bob.Hex()+"/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_REQUESTS_YET", errorCode(t, rec))

	rec = do(router, "GET", "/requesters/bob/latest", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_CreateErrors(t *testing.T) {
	tests := []struct {
		name       string
		caller     *common.Address
		body       string
		createErr  error
		wantStatus int
		wantCode   string
	}{
		{"no caller", nil, `{"revealee":"` + revealee.Hex() + `"}`, nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad revealee", &alice, `{"revealee":"0xdead"}`, nil, http.StatusBadRequest, "INVALID_ADDRESS"},
		{"bad json", &alice, `{`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"payment failed", &alice, `{"revealee":"` + revealee.Hex() + `"}`, fmt.Errorf("creating request: %w", domain.ErrPaymentFailed), http.StatusPaymentRequired, "PAYMENT_FAILED"},
		{"dispatch failed", &alice, `{"revealee":"` + revealee.Hex() + `"}`, fmt.Errorf("creating request: %w", oracledomain.ErrDispatchFailed), http.StatusBadGateway, "DISPATCH_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			svc.createErr = tt.createErr
			router := setupRouter(svc, tt.caller)

			rec := do(router, "POST", "/requests/", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestHandler_Cancel(t *testing.T) {
	svc := newMockService()
	req, err := svc.RequestStatus(context.Background(), alice, revealee)
	require.NoError(t, err)

	rec := do(setupRouter(svc, &bob), "POST", "/requests/"+req.ID.Hex()+"/cancel", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_REQUEST_OWNER", errorCode(t, rec))

	router := setupRouter(svc, &alice)
	rec = do(router, "POST", "/requests/"+req.ID.Hex()+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var canceled RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &canceled))
	assert.True(t, canceled.IsCanceled)
	assert.Equal(t, "canceled", canceled.State)
	assert.NotZero(t, canceled.CanceledAt)

	rec = do(router, "POST", "/requests/"+req.ID.Hex()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_RESOLVED", errorCode(t, rec))
}

func TestWriteServiceError_NotYetExpired(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, domain.ErrNotYetExpired)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_YET_EXPIRED", errorCode(t, rec))
}

func TestNewRequestResponse_Fulfilled(t *testing.T) {
	resp := NewRequestResponse(&domain.Request{
		ID:               common.HexToHash("0x01"),
		Payment:          big.NewInt(1),
		IsFulfilled:      true,
		IsHumanAndUnique: true,
		IsKYCUser:        true,
		KYCTimestamp:     1658845449,
		FulfilledAt:      t0,
	})
	assert.Equal(t, "fulfilled", resp.State)
	assert.Equal(t, "KYC_USER", resp.Status)
	assert.Equal(t, t0.Unix(), resp.FulfilledAt)
}
