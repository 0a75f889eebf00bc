package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/expanse-labs/expander-go/internal/httpclient"
	"github.com/expanse-labs/expander-go/internal/metrics"
	"github.com/expanse-labs/expander-go/pkg/utils"
)

const (
	// idTokenPath is the Expander login endpoint.
	idTokenPath = "/api/v1/idtoken"
	// DefaultSkew is the margin before actual expiry at which a token is
	// considered stale and refreshed.
	DefaultSkew = 30 * time.Second
	// defaultTTL applies when the login response omits expires_in.
	defaultTTL = 30 * time.Minute
)

// BundleCache persists token bundles across process runs. Optional; the
// Redis-backed store implements it.
type BundleCache interface {
	GetTokenBundle(ctx context.Context, key string) (*TokenBundle, error)
	PutTokenBundle(ctx context.Context, key string, tb TokenBundle, ttl time.Duration) error
	DeleteTokenBundle(ctx context.Context, key string) error
}

// Provider exchanges the long-lived credential for a short-lived ID token and
// caches it until expiry. It owns exactly one AccessToken at a time; a refresh
// replaces the token wholesale so callers never observe a half-updated one.
//
// The mutex is held across the whole check-refresh-cache sequence, so
// concurrent callers racing an expired token wait on the single in-flight
// login instead of each issuing their own.
type Provider struct {
	logger  *zap.Logger
	client  *http.Client
	creds   *CredentialStore
	baseURL string
	skew    time.Duration
	bundles BundleCache

	mu    sync.Mutex
	token AccessToken
}

// NewProvider creates a token provider. timeout bounds the login HTTP call;
// skew <= 0 falls back to DefaultSkew.
func NewProvider(logger *zap.Logger, creds *CredentialStore, baseURL string, timeout, skew time.Duration) *Provider {
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &Provider{
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		creds:   creds,
		baseURL: baseURL,
		skew:    skew,
	}
}

// SetBundleCache enables cross-process token reuse through the given cache.
func (p *Provider) SetBundleCache(c BundleCache) {
	p.bundles = c
}

// Token returns a valid bearer token value, logging in when the cached token
// is absent or within skew of expiry.
func (p *Provider) Token(ctx context.Context) (string, error) {
	tok, err := p.TokenInfo(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// TokenInfo returns the current access token with its expiry, refreshing it
// first when needed.
func (p *Provider) TokenInfo(ctx context.Context) (AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token.Valid(p.skew) {
		return p.token, nil
	}

	if tok, ok := p.loadBundle(ctx); ok {
		p.token = tok
		return tok, nil
	}

	tok, err := p.login(ctx)
	if err != nil {
		return AccessToken{}, err
	}
	p.token = tok
	p.storeBundle(ctx, tok)
	return tok, nil
}

// Login performs a single login attempt and replaces the cached token on
// success. Failures are not retried here; retry policy belongs to the caller.
func (p *Provider) Login(ctx context.Context) (AccessToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.login(ctx)
	if err != nil {
		return AccessToken{}, err
	}
	p.token = tok
	p.storeBundle(ctx, tok)
	return tok, nil
}

// Invalidate clears the cached token (and any persisted bundle), forcing the
// next Token call to re-login. The delete runs under mu so a refresh racing
// the invalidation cannot persist a bundle that the delete then removes.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = AccessToken{}
	if p.bundles != nil {
		if err := p.bundles.DeleteTokenBundle(context.Background(), p.bundleKey()); err != nil {
			p.logger.Debug("auth.bundle_delete_failed", zap.Error(err))
		}
	}
}

// login calls the ID token endpoint once. Non-2xx and 2xx-with-error bodies
// yield *httpclient.AuthError; network failures yield *httpclient.TransportError.
func (p *Provider) login(ctx context.Context) (AccessToken, error) {
	payload, err := json.Marshal(idTokenRequest{
		Key:    p.creds.Credential().Key,
		Secret: p.creds.Credential().Secret,
	})
	if err != nil {
		return AccessToken{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+idTokenPath, bytes.NewReader(payload))
	if err != nil {
		return AccessToken{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("auth.login_failed", zap.Error(err))
		return AccessToken{}, &httpclient.TransportError{Err: err, Retryable: httpclient.RetryableNetErr(err)}
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("auth.login_rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)))
		return AccessToken{}, &httpclient.AuthError{Status: resp.StatusCode, Body: raw}
	}

	var tokenResp idTokenResponse
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return AccessToken{}, fmt.Errorf("decode idtoken response: %w", err)
	}
	if tokenResp.Error != "" {
		p.logger.Warn("auth.login_rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("error", tokenResp.Error))
		return AccessToken{}, &httpclient.AuthError{Status: resp.StatusCode, Body: []byte(tokenResp.Error)}
	}
	if tokenResp.AccessToken == "" {
		return AccessToken{}, fmt.Errorf("idtoken endpoint returned empty access_token")
	}

	ttl := time.Duration(tokenResp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTTL
	}

	tok := AccessToken{
		Value:     tokenResp.AccessToken,
		ExpiresAt: time.Now().Add(ttl),
	}

	metrics.TokenRefreshesTotal.Inc()
	p.logger.Info("auth.token_refreshed",
		zap.String("token", utils.MaskToken(tok.Value)),
		zap.Int64("expires_in_sec", int64(ttl.Seconds())))

	return tok, nil
}

func (p *Provider) bundleKey() string {
	return "expander:token:" + p.creds.Credential().Key
}

// loadBundle adopts a still-valid persisted token, if any. Callers must hold mu.
func (p *Provider) loadBundle(ctx context.Context) (AccessToken, bool) {
	if p.bundles == nil {
		return AccessToken{}, false
	}
	tb, err := p.bundles.GetTokenBundle(ctx, p.bundleKey())
	if err != nil || tb == nil {
		return AccessToken{}, false
	}
	tok := AccessToken{Value: tb.AccessToken, ExpiresAt: time.Unix(tb.Exp, 0)}
	if !tok.Valid(p.skew) {
		return AccessToken{}, false
	}
	p.logger.Debug("auth.bundle_reused",
		zap.String("token", utils.MaskToken(tok.Value)),
		zap.Time("expires_at", tok.ExpiresAt))
	return tok, true
}

// storeBundle persists the token best-effort. Callers must hold mu.
func (p *Provider) storeBundle(ctx context.Context, tok AccessToken) {
	if p.bundles == nil {
		return
	}
	tb := TokenBundle{AccessToken: tok.Value, Exp: tok.ExpiresAt.Unix()}
	if err := p.bundles.PutTokenBundle(ctx, p.bundleKey(), tb, time.Until(tok.ExpiresAt)); err != nil {
		p.logger.Debug("auth.bundle_store_failed", zap.Error(err))
	}
}
