package mechanics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fastClient() *Client {
	c := NewClient(0)
	c.BackoffFactor = time.Millisecond
	c.MaxBackoff = 5 * time.Millisecond
	return c
}

func TestClientGetRetriesTransientStatus(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := fastClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestClientGetReturnsAfterExhaustingRetries(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := fastClient()
	c.MaxAttempts = 3
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (MaxAttempts)", attempts)
	}
}

func TestClientGetSucceedsImmediatelyOnOK(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := fastClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestClientSetsSimpleIndexAcceptHeader(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := fastClient().Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if gotAccept != simpleIndexAccept {
		t.Errorf("Accept header = %q, want %q", gotAccept, simpleIndexAccept)
	}
}

func TestIsGitHubRateLimitRequiresHostAndBody(t *testing.T) {
	notGitHub := &http.Response{
		StatusCode: http.StatusForbidden,
		Body:       http.NoBody,
	}
	if isGitHubRateLimit(notGitHub, "https://example.com/repos/foo") {
		t.Error("expected non-GitHub host to not match")
	}
}

func TestBackoffCapsAtMaxBackoff(t *testing.T) {
	c := &Client{BackoffFactor: time.Second, MaxBackoff: 2 * time.Second}
	if got := c.backoff(10); got > 2*time.Second {
		t.Errorf("backoff(10) = %v, want capped at 2s", got)
	}
}
