// Package client provides a Go client for the revealer API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/revealer/internal/hmacauth"
)

// Client is a revealer API client
type Client struct {
	baseURL    string
	apiKey     string
	caller     string
	oracle     common.Address
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithCaller sends the caller address in X-Caller-Address. Servers running
// with AUTH_TYPE=none identify callers this way.
func WithCaller(address string) Option {
	return func(client *Client) {
		client.caller = address
	}
}

// WithOracle signs oracle callbacks as oracle using the shared secret.
func WithOracle(oracle common.Address, secret string) Option {
	return func(client *Client) {
		client.oracle = oracle
		client.secret = secret
	}
}

// New creates a new revealer client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Request is a verification request
type Request struct {
	ID               string `json:"id"`
	Requester        string `json:"requester"`
	Revealee         string `json:"revealee"`
	Payment          string `json:"payment"`
	Expiration       int64  `json:"expiration"`
	State            string `json:"state"`
	IsCanceled       bool   `json:"isCanceled"`
	IsFulfilled      bool   `json:"isFulfilled"`
	IsHumanAndUnique bool   `json:"isHumanAndUnique"`
	IsKYCUser        bool   `json:"isKYCUser"`
	KYCTimestamp     uint64 `json:"kycTimestamp"`
	Status           string `json:"status,omitempty"`
	CreatedAt        int64  `json:"createdAt"`
	CanceledAt       int64  `json:"canceledAt,omitempty"`
	FulfilledAt      int64  `json:"fulfilledAt,omitempty"`
}

// Settings are the owner-managed deployment parameters
type Settings struct {
	Owner     string `json:"owner"`
	Oracle    string `json:"oracle"`
	Payment   string `json:"payment"`
	Link      string `json:"link"`
	SignUpURL string `json:"signUpURL"`
	JobID     string `json:"jobId"`
	JobIDHex  string `json:"jobIdHex"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Event is an entry of the event log
type Event struct {
	Name         string `json:"name"`
	RequestID    string `json:"requestId"`
	Requester    string `json:"requester"`
	Revealee     string `json:"revealee"`
	Expiration   int64  `json:"expiration,omitempty"`
	Status       string `json:"status,omitempty"`
	KYCTimestamp uint64 `json:"kycTimestamp"`
	At           string `json:"at"`
}

// EventPage is one page of the event log
type EventPage struct {
	Data       []Event `json:"data"`
	HasMore    bool    `json:"hasMore"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// EventQuery filters the event log
type EventQuery struct {
	Name      string
	RequestID string
	Cursor    string
	Limit     int
}

// Descriptor is an outbound oracle request
type Descriptor struct {
	RequestID        string `json:"requestId"`
	Oracle           string `json:"oracle"`
	JobID            string `json:"jobId"`
	CallbackAddress  string `json:"callbackAddress"`
	CallbackFunction string `json:"callbackFunction"`
	CallbackSelector string `json:"callbackSelector"`
	Payment          string `json:"payment"`
	Requester        string `json:"requester"`
	Revealee         string `json:"revealee"`
	Nonce            uint64 `json:"nonce"`
	CreatedAt        string `json:"createdAt"`
}

// Account is a holder's position on the development ledger
type Account struct {
	Token     string `json:"token"`
	Holder    string `json:"holder"`
	Spender   string `json:"spender"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusName returns the display name of a status ordinal
func (c *Client) StatusName(ctx context.Context, ordinal uint64) (string, error) {
	var resp struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, "/api/v1/statuses/"+strconv.FormatUint(ordinal, 10), &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// RequestStatus opens a verification request about revealee, paid by the caller
func (c *Client) RequestStatus(ctx context.Context, revealee string) (*Request, error) {
	var resp Request
	if err := c.post(ctx, "/api/v1/requests", map[string]string{"revealee": revealee}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels an expired request and refunds its payment
func (c *Client) Cancel(ctx context.Context, requestID string) (*Request, error) {
	var resp Request
	if err := c.post(ctx, "/api/v1/requests/"+url.PathEscape(requestID)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRequest gets a request by id
func (c *Client) GetRequest(ctx context.Context, requestID string) (*Request, error) {
	var resp Request
	if err := c.get(ctx, "/api/v1/requests/"+url.PathEscape(requestID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestExists reports whether a request id was ever created
func (c *Client) RequestExists(ctx context.Context, requestID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := c.get(ctx, "/api/v1/requests/"+url.PathEscape(requestID)+"/exists", &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// LatestRequestID returns the most recent request id created by requester
func (c *Client) LatestRequestID(ctx context.Context, requester string) (string, error) {
	var resp struct {
		RequestID string `json:"requestId"`
	}
	if err := c.get(ctx, "/api/v1/requesters/"+url.PathEscape(requester)+"/latest", &resp); err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

// Identity is the account the client's credentials act as
type Identity struct {
	Address string `json:"address"`
	KeyName string `json:"keyName,omitempty"`
}

// WhoAmI resolves the client's credentials to an address
func (c *Client) WhoAmI(ctx context.Context) (*Identity, error) {
	var resp Identity
	if err := c.get(ctx, "/api/v1/whoami", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settings gets the current deployment parameters
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var resp Settings
	if err := c.get(ctx, "/api/v1/config", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetOracle changes the oracle address (owner only)
func (c *Client) SetOracle(ctx context.Context, oracle string) (*Settings, error) {
	return c.setParam(ctx, "oracle", oracle)
}

// SetOraclePayment changes the per-request payment (owner only)
func (c *Client) SetOraclePayment(ctx context.Context, payment string) (*Settings, error) {
	return c.setParam(ctx, "payment", payment)
}

// SetLink changes the payment token address (owner only)
func (c *Client) SetLink(ctx context.Context, link string) (*Settings, error) {
	return c.setParam(ctx, "link", link)
}

// SetSignUpURL changes the sign-up URL (owner only)
func (c *Client) SetSignUpURL(ctx context.Context, signUpURL string) (*Settings, error) {
	return c.setParam(ctx, "sign-up-url", signUpURL)
}

// SetJobID changes the oracle job id (owner only)
func (c *Client) SetJobID(ctx context.Context, jobID string) (*Settings, error) {
	return c.setParam(ctx, "job-id", jobID)
}

// TransferOwnership hands the settings to a new owner (owner only)
func (c *Client) TransferOwnership(ctx context.Context, newOwner string) (*Settings, error) {
	return c.setParam(ctx, "owner", newOwner)
}

func (c *Client) setParam(ctx context.Context, param, value string) (*Settings, error) {
	var resp Settings
	if err := c.send(ctx, http.MethodPut, "/api/v1/config/"+param, map[string]string{"value": value}, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events lists the event log
func (c *Client) Events(ctx context.Context, q EventQuery) (*EventPage, error) {
	values := url.Values{}
	if q.Name != "" {
		values.Set("name", q.Name)
	}
	if q.RequestID != "" {
		values.Set("request_id", q.RequestID)
	}
	if q.Cursor != "" {
		values.Set("cursor", q.Cursor)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/v1/events"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	var resp EventPage
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Mint credits the caller on the development ledger
func (c *Client) Mint(ctx context.Context, amount string) (*Account, error) {
	var resp Account
	if err := c.post(ctx, "/api/v1/ledger/mint", map[string]string{"amount": amount}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Approve sets the caller's allowance to the escrow on the development ledger
func (c *Client) Approve(ctx context.Context, amount string) (*Account, error) {
	var resp Account
	if err := c.post(ctx, "/api/v1/ledger/approve", map[string]string{"amount": amount}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dispatch gets the descriptor recorded for a request
func (c *Client) Dispatch(ctx context.Context, requestID string) (*Descriptor, error) {
	var resp Descriptor
	if err := c.get(ctx, "/api/v1/oracle/dispatches/"+url.PathEscape(requestID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Claim takes up to max queued descriptors addressed to the signing oracle
func (c *Client) Claim(ctx context.Context, max int) ([]Descriptor, error) {
	var resp struct {
		Data []Descriptor `json:"data"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/oracle/claim", map[string]int{"max": max}, &resp, true); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Fulfill delivers a verification result as the signing oracle. It reports
// whether the result was recorded.
func (c *Client) Fulfill(ctx context.Context, requestID string, status uint8, kycTimestamp uint64) (bool, error) {
	body := struct {
		RequestID    string `json:"requestId"`
		Status       uint8  `json:"status"`
		KYCTimestamp uint64 `json:"kycTimestamp"`
	}{requestID, status, kycTimestamp}

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/oracle/fulfill", body, &resp, true); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.send(ctx, http.MethodPost, path, body, result, false)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any, signed bool) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	payload := buf.Bytes()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		ts := strconv.FormatInt(c.now().Unix(), 10)
		req.Header.Set(hmacauth.HeaderOracle, c.oracle.Hex())
		req.Header.Set(hmacauth.HeaderTimestamp, ts)
		if c.secret != "" {
			req.Header.Set(hmacauth.HeaderSignature, hmacauth.Sign(c.secret, ts, c.oracle, payload))
		}
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.caller != "" {
		req.Header.Set("X-Caller-Address", c.caller)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
