package oemsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mystore/backend/internal/syncwire"
)

var (
	ErrUnauthorized = errors.New("remote rejected the access token")
	ErrAuthFailed   = errors.New("authentication failed")
)

// APIError is a non-2xx reply from the reporting API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

type ClientConfig struct {
	BaseURL        string
	Username       string
	Password       string
	RequestTimeout time.Duration
	TokenAttempts  int
	// Backoff is the pause before token attempt n+1; defaults to 1s·2^n.
	Backoff    func(attempt int) time.Duration
	HTTPClient *http.Client
}

// Client talks to the remote reporting API and keeps the current bearer
// token.
type Client struct {
	baseURL       string
	username      string
	password      string
	tokenAttempts int
	backoff       func(attempt int) time.Duration
	http          *http.Client
	logger        *logrus.Entry

	mu    sync.RWMutex
	token string
}

func NewClient(cfg ClientConfig, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.TokenAttempts < 1 {
		cfg.TokenAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func(attempt int) time.Duration { return time.Second << attempt }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		username:      cfg.Username,
		password:      cfg.Password,
		tokenAttempts: cfg.TokenAttempts,
		backoff:       cfg.Backoff,
		http:          httpClient,
		logger:        logger.WithField("module", "oemsync.client"),
	}
}

// Authenticate exchanges the credentials for a fresh token. Only timeouts
// are retried; any other failure is final.
func (c *Client) Authenticate(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < c.tokenAttempts; attempt++ {
		var resp syncwire.TokenResponse
		err := c.post(ctx, syncwire.TokenPath, "", syncwire.TokenRequest{Username: c.username, Password: c.password}, &resp)
		if err == nil {
			if resp.Access == "" {
				return fmt.Errorf("%w: empty access token", ErrAuthFailed)
			}
			c.mu.Lock()
			c.token = resp.Access
			c.mu.Unlock()
			return nil
		}
		if !isTimeout(ctx, err) {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		lastErr = err
		c.logger.WithField("attempt", attempt+1).Warn("token request timed out")
		if attempt+1 < c.tokenAttempts {
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: timed out after %d attempts: %v", ErrAuthFailed, c.tokenAttempts, lastErr)
}

func (c *Client) PushProducts(ctx context.Context, batch []syncwire.Product) (*syncwire.ProductsResponse, error) {
	var resp syncwire.ProductsResponse
	if err := c.post(ctx, syncwire.ProductsPath, c.currentToken(), syncwire.ProductsRequest{Products: batch}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushReceipt sends exactly one receipt per request.
func (c *Client) PushReceipt(ctx context.Context, receipt syncwire.Receipt) (*syncwire.ReceiptsResponse, error) {
	var resp syncwire.ReceiptsResponse
	if err := c.post(ctx, syncwire.ReceiptsPath, c.currentToken(), syncwire.ReceiptsRequest{Receipts: []syncwire.Receipt{receipt}}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushAggregate posts one rollup to the endpoint its kind names.
func (c *Client) PushAggregate(ctx context.Context, req syncwire.AggregateRequest) (*syncwire.AggregateResponse, error) {
	var resp syncwire.AggregateResponse
	if err := c.post(ctx, req.Path(), c.currentToken(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) post(ctx context.Context, path string, token string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{StatusCode: res.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// isTimeout reports a request deadline, not a cancelled run.
func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
