package oemsync

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystore/backend/internal/syncwire"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(ClientConfig{
		BaseURL:        url,
		Username:       remoteUser,
		Password:       remotePassword,
		RequestTimeout: timeout,
		Backoff:        func(int) time.Duration { return 0 },
	}, quietLogger())
}

func TestAuthenticateRetriesTimeoutsThreeTimes(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	err := newTestClient(server.URL, 50*time.Millisecond).Authenticate(t.Context())
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "timed out after 3 attempts")
	assert.Equal(t, int32(3), hits.Load())
}

func TestAuthenticateDoesNotRetryServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := newTestClient(server.URL, time.Second).Authenticate(t.Context())
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Equal(t, int32(1), hits.Load())
}

func TestAuthenticateRecoversAfterOneTimeout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			<-r.Context().Done()
			return
		}
		_ = json.NewEncoder(w).Encode(syncwire.TokenResponse{Access: "fresh-token"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 100*time.Millisecond)
	require.NoError(t, client.Authenticate(t.Context()))
	assert.Equal(t, "fresh-token", client.currentToken())
	assert.Equal(t, int32(2), hits.Load())
}

func TestPushReceiptSendsOneReceiptWithBearerToken(t *testing.T) {
	var captured syncwire.ReceiptsRequest
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case syncwire.TokenPath:
			_ = json.NewEncoder(w).Encode(syncwire.TokenResponse{Access: "abc"})
		case syncwire.ReceiptsPath:
			authHeader = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&captured)
			_ = json.NewEncoder(w).Encode(syncwire.ReceiptsResponse{Status: "success", Synced: 1, NewSales: 1})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, time.Second)
	require.NoError(t, client.Authenticate(t.Context()))
	payload, ok := receiptPayload(fixtureBundle(5, fixtureProduct(1, "Zara")))
	require.True(t, ok)

	resp, err := client.PushReceipt(t.Context(), payload)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NewSales)
	assert.Equal(t, "Bearer abc", authHeader)
	require.Len(t, captured.Receipts, 1)
	assert.Equal(t, "RCPT005/11/2025", captured.Receipts[0].ReceiptNumber)
}

func TestAPIErrorMatchesUnauthorizedAndTruncatesBody(t *testing.T) {
	err := &APIError{StatusCode: http.StatusUnauthorized, Body: strings.Repeat("x", 500)}
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Len(t, err.Error(), len("HTTP 401: ")+200)

	other := &APIError{StatusCode: http.StatusUnprocessableEntity, Body: "unknown product"}
	assert.False(t, errors.Is(other, ErrUnauthorized))
}
