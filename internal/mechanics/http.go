// Package mechanics provides the concrete, disk-and-network-touching
// adapters the bootstrap core only sees through internal/hooks and
// internal/bootstrap's seam interfaces: fetching URLs, running
// subprocesses, unpacking archives, invoking PEP 517 build-backend
// hooks, and turning all of that into the Engine's SourceResolver,
// Builder, DependencyExtractor, and WheelMirror.
//
// Everything in internal/hooks and internal/bootstrap is deliberately
// silent on how a byte gets from a URL to a file or how a subprocess
// gets launched; this package is where that silence ends.
package mechanics

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// retryableStatus is the set of HTTP status codes worth retrying:
// rate limiting and the transient 5xx family.
var retryableStatus = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// simpleIndexAccept negotiates the PEP 691 JSON simple-index form,
// falling back to PEP 503 HTML when a server only speaks that.
const simpleIndexAccept = "application/vnd.pypi.simple.v1+json, text/html;q=0.2"

// Client is a net/http-backed implementation of hooks.HTTPClient with
// bounded exponential-backoff retries and GitHub rate-limit awareness,
// modeled on RetryHTTPAdapter: a fixed number of attempts, retrying
// 429/5xx responses and connection-level errors with jittered
// exponential backoff, and honoring GitHub's X-RateLimit-Reset header
// for 403 rate-limit responses from api.github.com.
type Client struct {
	http *http.Client

	// MaxAttempts is the total number of tries per request, including
	// the first. DEFAULT_RETRY_CONFIG's total=5 extra retries means 6.
	MaxAttempts int
	// BackoffFactor scales the exponential backoff: backoff_factor *
	// 2^attempt, plus jitter.
	BackoffFactor time.Duration
	// MaxBackoff caps any single wait computed from BackoffFactor.
	MaxBackoff time.Duration
	// GitHubRateLimitCap caps the wait computed from a GitHub
	// X-RateLimit-Reset header.
	GitHubRateLimitCap time.Duration
}

// NewClient returns a Client with the given per-request timeout and the
// same retry defaults as RetryHTTPAdapter's DEFAULT_RETRY_CONFIG. A
// timeout of zero disables the deadline.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:               &http.Client{Timeout: timeout},
		MaxAttempts:        6,
		BackoffFactor:      time.Second,
		MaxBackoff:         60 * time.Second,
		GitHubRateLimitCap: 300 * time.Second,
	}
}

// Get issues a GET request, retrying retryable failures with jittered
// exponential backoff up to MaxAttempts. The Accept header always
// offers the PEP 691 JSON simple-index form ahead of PEP 503 HTML;
// callers that are not hitting a simple index are unaffected, since
// servers ignore an Accept value they don't recognize.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts(); attempt++ {
		resp, err := c.doOnce(ctx, url)
		if err != nil {
			lastErr = err
			if attempt == c.maxAttempts()-1 {
				return nil, lastErr
			}
			if sleepErr := sleep(ctx, c.backoff(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		if isGitHubRateLimit(resp, url) {
			if attempt == c.maxAttempts()-1 {
				return resp, nil
			}
			wait := c.githubRateLimitWait(resp, attempt)
			resp.Body.Close()
			if sleepErr := sleep(ctx, wait); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		if retryableStatus[resp.StatusCode] {
			if attempt == c.maxAttempts()-1 {
				return resp, nil
			}
			resp.Body.Close()
			if sleepErr := sleep(ctx, c.backoff(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 6
	}
	return c.MaxAttempts
}

func (c *Client) doOnce(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}
	req.Header.Set("Accept", simpleIndexAccept)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", url)
	}
	return resp, nil
}

// backoff computes the jittered exponential wait for a generic
// retryable status or transient error: backoff_factor * 2^attempt +
// uniform(0,1), capped at MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = time.Second
	}
	maxBackoff := c.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}
	wait := time.Duration(float64(factor) * float64(uint64(1)<<uint(attempt)))
	wait += jitter()
	if wait > maxBackoff {
		wait = maxBackoff
	}
	return wait
}

// githubRateLimitWait reads X-RateLimit-Reset off resp and returns how
// long to wait until it passes (plus a 5s margin), capped at
// GitHubRateLimitCap. It falls back to the generic backoff formula if
// the header is absent or unparseable.
func (c *Client) githubRateLimitWait(resp *http.Response, attempt int) time.Duration {
	limit := c.GitHubRateLimitCap
	if limit <= 0 {
		limit = 300 * time.Second
	}
	resetHeader := resp.Header.Get("X-RateLimit-Reset")
	if resetHeader != "" {
		resetUnix, err := strconv.ParseInt(resetHeader, 10, 64)
		if err == nil {
			wait := time.Until(time.Unix(resetUnix, 0)) + 5*time.Second
			if wait > 0 {
				if wait > limit {
					wait = limit
				}
				return wait
			}
		}
	}
	return c.backoff(attempt)
}

// isGitHubRateLimit reports whether resp is a GitHub API 403 rate-limit
// response, identified the same way the adapter it's modeled on does:
// status 403, host api.github.com, and a body mentioning "rate limit".
func isGitHubRateLimit(resp *http.Response, url string) bool {
	if resp.StatusCode != http.StatusForbidden || !strings.Contains(url, "api.github.com") {
		return false
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}

func jitter() time.Duration {
	return time.Duration(rand.Float64() * float64(time.Second))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
