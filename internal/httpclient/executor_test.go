package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTokens is a TokenSource that serves scripted token values and counts
// invalidations.
type fakeTokens struct {
	mu            sync.Mutex
	tokens        []string
	idx           int
	invalidations int
	err           error
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	i := f.idx
	if i >= len(f.tokens) {
		i = len(f.tokens) - 1
	}
	return f.tokens[i], nil
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	f.idx++
}

func newExec(client *http.Client, tokens TokenSource, retryOn401 bool) *Executor {
	return New(zap.NewNop(), nil, client, tokens, retryOn401)
}

func getReq(url string) *Request {
	return &Request{Method: http.MethodGet, URL: url}
}

// ─── Success: bearer token attached ──────────────────────────────────────────

func TestDoJSON_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	exec := newExec(srv.Client(), &fakeTokens{tokens: []string{"tok-1"}}, true)

	var out map[string]string
	require.NoError(t, exec.DoJSON(context.Background(), getReq(srv.URL), "k", &out))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "ok", out["result"])
}

// ─── 401: one invalidate, one re-login, one retried send ─────────────────────

func TestDoJSON_401RefreshAndRetryOnce(t *testing.T) {
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		if len(auths) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	tokens := &fakeTokens{tokens: []string{"stale", "fresh"}}
	exec := newExec(srv.Client(), tokens, true)

	require.NoError(t, exec.DoJSON(context.Background(), getReq(srv.URL), "k", nil))
	require.Len(t, auths, 2, "exactly one retried send")
	assert.Equal(t, "Bearer stale", auths[0])
	assert.Equal(t, "Bearer fresh", auths[1], "retry must carry the refreshed token")
	assert.Equal(t, 1, tokens.invalidations, "exactly one forced invalidate")
}

// ─── 401 twice: AuthError, no third attempt ──────────────────────────────────

func TestDoJSON_Repeated401YieldsAuthError(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"token invalid"}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{tokens: []string{"t1", "t2"}}
	exec := newExec(srv.Client(), tokens, true)

	err := exec.DoJSON(context.Background(), getReq(srv.URL), "k", nil)
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.EqualValues(t, 2, count.Load(), "second 401 must not trigger a third attempt")
	assert.Equal(t, 1, tokens.invalidations)
}

// ─── 401 with retry disabled: immediate AuthError ────────────────────────────

func TestDoJSON_401RetryDisabled(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{tokens: []string{"t1"}}
	exec := newExec(srv.Client(), tokens, false)

	err := exec.DoJSON(context.Background(), getReq(srv.URL), "k", nil)
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.EqualValues(t, 1, count.Load())
	assert.Equal(t, 0, tokens.invalidations)
}

// ─── Other 4xx: APIError, no retry ───────────────────────────────────────────

func TestDoJSON_4xxSurfacedWithoutRetry(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID"}`))
	}))
	defer srv.Close()

	exec := newExec(srv.Client(), &fakeTokens{tokens: []string{"t"}}, true)

	err := exec.DoJSON(context.Background(), getReq(srv.URL), "k", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, string(apiErr.Body), "INVALID")
	assert.False(t, apiErr.Retryable)
	assert.EqualValues(t, 1, count.Load(), "non-auth errors must not be retried")
}

// ─── 5xx: APIError marked retryable, still no built-in retry ─────────────────

func TestDoJSON_5xxMarkedRetryable(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec := newExec(srv.Client(), &fakeTokens{tokens: []string{"t"}}, true)

	err := exec.DoJSON(context.Background(), getReq(srv.URL), "k", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable, "5xx should be flagged retryable for the caller")
	assert.EqualValues(t, 1, count.Load(), "retry policy belongs to the caller")
}

// ─── Transport failure: TransportError ───────────────────────────────────────

func TestDoJSON_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client := srv.Client()
	srv.Close() // connection refused from here on

	exec := newExec(client, &fakeTokens{tokens: []string{"t"}}, true)

	err := exec.DoJSON(context.Background(), getReq(srv.URL), "k", nil)
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, transportErr.Retryable)
}

// ─── Token source failure: surfaced before any HTTP call ─────────────────────

func TestDoJSON_TokenSourceFailure(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
	}))
	defer srv.Close()

	tokens := &fakeTokens{err: &TransportError{Err: context.DeadlineExceeded, Retryable: true}}
	exec := newExec(srv.Client(), tokens, true)

	err := exec.DoJSON(context.Background(), getReq(srv.URL), "k", nil)
	require.Error(t, err)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.EqualValues(t, 0, count.Load(), "no resource call may happen when login fails")
}

// ─── POST body is rebuilt and re-sent on the 401 retry ───────────────────────

func TestDoJSON_BodyResentOnRetry(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received = append(received, string(b))
		if len(received) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	exec := newExec(srv.Client(), &fakeTokens{tokens: []string{"t1", "t2"}}, true)

	req := &Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"value": "hello"},
	}
	require.NoError(t, exec.DoJSON(context.Background(), req, "k", nil))
	require.Len(t, received, 2)
	assert.JSONEq(t, `{"value":"hello"}`, received[0])
	assert.JSONEq(t, `{"value":"hello"}`, received[1], "retry must re-send the full body")
}

// ─── Query merge: params baked into the URL win over the template ────────────

func TestDoJSON_QueryMergePrefersURLParams(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := newExec(srv.Client(), &fakeTokens{tokens: []string{"t"}}, true)

	req := &Request{
		Method: http.MethodGet,
		URL:    srv.URL + "?pageToken=c2&limit=50",
		Query:  url.Values{"pageToken": {"ignored"}, "eventType": {"APPEARANCE"}},
	}
	require.NoError(t, exec.DoJSON(context.Background(), req, "k", nil))
	assert.Equal(t, "c2", got.Get("pageToken"), "cursor from the next URL must win")
	assert.Equal(t, "50", got.Get("limit"))
	assert.Equal(t, "APPEARANCE", got.Get("eventType"))
}

// ─── Decode failure ──────────────────────────────────────────────────────────

func TestDoJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not-json"))
	}))
	defer srv.Close()

	exec := newExec(srv.Client(), &fakeTokens{tokens: []string{"t"}}, true)

	var out map[string]string
	err := exec.DoJSON(context.Background(), getReq(srv.URL), "k", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed")
}

// ─── Context cancellation aborts the call ────────────────────────────────────

func TestDoJSON_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	exec := newExec(srv.Client(), &fakeTokens{tokens: []string{"t"}}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.DoJSON(ctx, getReq(srv.URL), "k", nil)
	require.Error(t, err)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}
