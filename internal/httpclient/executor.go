package httpclient

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

	"go.uber.org/zap"

	"github.com/expanse-labs/expander-go/internal/metrics"
	"github.com/expanse-labs/expander-go/internal/rate"
)

// TokenSource supplies bearer tokens for outbound requests. Invalidate clears
// any cached token so the next Token call performs a fresh login.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Request describes one API call. The Executor rebuilds the underlying
// *http.Request for every attempt so a retried call re-sends the full body.
type Request struct {
	Method string
	URL    string // absolute; may already carry a query string (pagination next URLs do)
	Query  url.Values
	Header http.Header
	Body   any // marshaled to JSON when non-nil
}

// build constructs the wire request with the Authorization header attached.
func (r *Request) build(ctx context.Context, token string) (*http.Request, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", r.URL, err)
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for key, vals := range r.Query {
			if q.Has(key) {
				// Params baked into a next-page URL win over the template.
				continue
			}
			for _, v := range vals {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	for key, vals := range r.Header {
		req.Header[key] = append([]string(nil), vals...)
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// Executor handles rate-limited, authorized HTTP execution with JSON decoding.
// A 401 response forces one token refresh and one retry; every other failure
// is surfaced to the caller without retry.
type Executor struct {
	logger     *zap.Logger
	rateMgr    *rate.Manager
	http       *http.Client
	tokens     TokenSource
	retryOn401 bool
}

// New creates an Executor. tokens must not be nil; rateMgr may be nil to
// disable rate limiting.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	tokens TokenSource,
	retryOn401 bool,
) *Executor {
	return &Executor{
		logger:     logger,
		rateMgr:    rateMgr,
		http:       httpClient,
		tokens:     tokens,
		retryOn401: retryOn401,
	}
}

// DoJSON executes req with a valid bearer token and JSON-decodes the 2xx
// response into out. rateLimitKey scopes the rate limiter per endpoint.
//
// On a 401 it invalidates the cached token, obtains a fresh one, and resends
// exactly once; a second 401 yields *AuthError. Other non-2xx statuses yield
// *APIError and transport failures yield *TransportError, both without retry.
func (e *Executor) DoJSON(ctx context.Context, req *Request, rateLimitKey string, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := e.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("obtain access token: %w", err)
		}

		httpReq, err := req.build(ctx, token)
		if err != nil {
			return err
		}

		start := time.Now()
		resp, err := e.http.Do(httpReq)
		if err != nil {
			e.logger.Warn("expander.http_failed",
				zap.String("url", httpReq.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			metrics.IncRequest(rateLimitKey, req.Method, "transport_error")
			return &TransportError{Err: err, Retryable: RetryableNetErr(err)}
		}

		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)
		metrics.IncRequest(rateLimitKey, req.Method, strconv.Itoa(resp.StatusCode))
		metrics.ObserveDuration(metrics.RequestDuration, start, rateLimitKey, req.Method)

		if resp.StatusCode == http.StatusUnauthorized {
			if attempt == 0 && e.retryOn401 {
				e.logger.Warn("expander.token_rejected",
					zap.String("url", httpReq.URL.String()),
					zap.Duration("latency", elapsed))
				metrics.AuthRetriesTotal.Inc()
				e.tokens.Invalidate()
				continue
			}
			return &AuthError{Status: resp.StatusCode, Body: body}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			e.logger.Warn("expander.http_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", httpReq.URL.String()),
				zap.Duration("latency", elapsed),
				zap.String("body", string(body)))
			return &APIError{
				Status:    resp.StatusCode,
				Body:      body,
				Retryable: resp.StatusCode >= 500,
			}
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				e.logger.Warn("expander.decode_failed",
					zap.Error(err),
					zap.String("url", httpReq.URL.String()),
					zap.String("body", string(body)))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug("expander.http_success",
			zap.String("url", httpReq.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))

		return nil
	}
}
