package auth

import "time"

// idTokenRequest is the login payload for POST /api/v1/idtoken.
type idTokenRequest struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// idTokenResponse is the vendor's login response. Error carries the legacy
// 200-with-error shape some deployments still return.
type idTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Error       string `json:"error,omitempty"`
}

// AccessToken is a short-lived bearer credential derived from the Credential.
// Tokens are replaced wholesale on refresh, never mutated in place.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used, leaving skew as a safety
// margin before the actual expiry.
func (t AccessToken) Valid(skew time.Duration) bool {
	return t.Value != "" && time.Now().Before(t.ExpiresAt.Add(-skew))
}

// TokenBundle is the JSON shape persisted to the optional cross-process
// token cache.
type TokenBundle struct {
	AccessToken string `json:"access_token"`
	Exp         int64  `json:"exp"` // Unix timestamp
}
