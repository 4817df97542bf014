package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"shadowpay/core/types"
	"shadowpay/crypto"
	"shadowpay/native/payrequest"
	"shadowpay/rpc"
)

// APIError is a non-2xx response from the node.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("shadowpay %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("shadowpay %d %s: %s", e.Status, e.Code, e.Message)
}

// Client wraps the node's REST endpoints.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	authToken  string
	apiKey     string

	mu        sync.Mutex
	programID *[32]byte
}

// Option mutates the client configuration during construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithAuthToken sets the bearer token attached to transaction submissions.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = strings.TrimSpace(token)
	}
}

// WithAPIKey sets the X-API-Key header the node rate limits by.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// New constructs a client pointed at the supplied base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("baseURL required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	client := &Client{baseURL: parsed, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Program fetches the program identity and reserve schedule.
func (c *Client) Program(ctx context.Context) (*rpc.ProgramResult, error) {
	var out rpc.ProgramResult
	if err := c.do(ctx, http.MethodGet, "/v1/program", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProgramID returns the node's program identity, fetching it once.
func (c *Client) ProgramID(ctx context.Context) ([32]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.programID != nil {
		return *c.programID, nil
	}
	program, err := c.Program(ctx)
	if err != nil {
		return [32]byte{}, err
	}
	id, err := crypto.ParseAddress(program.ProgramID)
	if err != nil {
		return [32]byte{}, fmt.Errorf("program id: %w", err)
	}
	c.programID = &id
	return id, nil
}

// Account fetches a wallet or program-owned account.
func (c *Client) Account(ctx context.Context, addr [32]byte) (*rpc.AccountResult, error) {
	var out rpc.AccountResult
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+crypto.FormatAddress(addr), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PayRequest fetches the record stored at addr.
func (c *Client) PayRequest(ctx context.Context, addr [32]byte) (*rpc.PayRequestResult, error) {
	var out rpc.PayRequestResult
	if err := c.do(ctx, http.MethodGet, "/v1/payrequests/"+crypto.FormatAddress(addr), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events lists indexed events for the pay request at addr.
func (c *Client) Events(ctx context.Context, addr [32]byte, limit int) ([]rpc.EventResult, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []rpc.EventResult
	if err := c.do(ctx, http.MethodGet, "/v1/payrequests/"+crypto.FormatAddress(addr)+"/events", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Submit posts a signed transaction.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (*rpc.ReceiptResult, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	var out rpc.ReceiptResult
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) nonce(ctx context.Context, addr [32]byte) (uint64, error) {
	acc, err := c.Account(ctx, addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// CreatePayRequest opens a pay request for key and returns the receipt with
// the reference payers need.
func (c *Client) CreatePayRequest(ctx context.Context, key *crypto.PrivateKey, seed []byte, amount uint64) (*rpc.ReceiptResult, payrequest.Reference, error) {
	programID, err := c.ProgramID(ctx)
	if err != nil {
		return nil, payrequest.Reference{}, err
	}
	nonce, err := c.nonce(ctx, key.Address())
	if err != nil {
		return nil, payrequest.Reference{}, err
	}
	tx, ref, err := BuildCreate(programID, key.Address(), nonce, seed, amount)
	if err != nil {
		return nil, payrequest.Reference{}, err
	}
	receipt, err := c.signAndSubmit(ctx, key, tx)
	return receipt, ref, err
}

// SettlePayment deposits amount from key into the pay request at ref.
func (c *Client) SettlePayment(ctx context.Context, key *crypto.PrivateKey, ref payrequest.Reference, amount uint64) (*rpc.ReceiptResult, error) {
	nonce, err := c.nonce(ctx, key.Address())
	if err != nil {
		return nil, err
	}
	tx, err := BuildSettle(key.Address(), nonce, ref, amount)
	if err != nil {
		return nil, err
	}
	return c.signAndSubmit(ctx, key, tx)
}

// SweepFunds withdraws a settled pay request to its receiver.
func (c *Client) SweepFunds(ctx context.Context, key *crypto.PrivateKey, ref payrequest.Reference) (*rpc.ReceiptResult, error) {
	nonce, err := c.nonce(ctx, key.Address())
	if err != nil {
		return nil, err
	}
	return c.signAndSubmit(ctx, key, BuildSweep(key.Address(), nonce, ref))
}

func (c *Client) signAndSubmit(ctx context.Context, key *crypto.PrivateKey, tx *types.Transaction) (*rpc.ReceiptResult, error) {
	if err := tx.Sign(key); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return c.Submit(ctx, tx)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body []byte, out any) error {
	rel := &url.URL{Path: strings.TrimRight(c.baseURL.Path, "/") + endpoint}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(rel)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(payload))}
		var decoded rpc.ErrorResult
		if json.Unmarshal(payload, &decoded) == nil && decoded.Code != "" {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Message
			apiErr.RequestID = decoded.RequestID
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
