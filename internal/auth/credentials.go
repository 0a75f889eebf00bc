package auth

import (
	"context"
	"fmt"

	"github.com/expanse-labs/expander-go/pkg/config"
	"github.com/expanse-labs/expander-go/pkg/secrets"
)

// ConfigError reports missing or invalid credential configuration.
// It is fatal: no retry will make an absent key appear.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing or empty configuration value: %s", e.Field)
}

// Credential is the long-lived key/secret pair used only to obtain ID tokens.
// It is immutable after construction.
type Credential struct {
	Key    string
	Secret string
}

// CredentialStore holds the credential for the lifetime of the process.
// Read-only after construction.
type CredentialStore struct {
	cred Credential
}

// NewCredentialStore validates and wraps a credential.
func NewCredentialStore(cred Credential) (*CredentialStore, error) {
	if cred.Key == "" {
		return nil, &ConfigError{Field: "api key"}
	}
	if cred.Secret == "" {
		return nil, &ConfigError{Field: "api secret"}
	}
	return &CredentialStore{cred: cred}, nil
}

// CredentialsFromConfig builds a store from environment-supplied config.
func CredentialsFromConfig(cfg *config.Config) (*CredentialStore, error) {
	return NewCredentialStore(Credential{Key: cfg.APIKey, Secret: cfg.APISecret})
}

// CredentialsFromSecret resolves the credential from a secrets Provider
// (AWS Secrets Manager in production). The secret must be a JSON map with
// "api_key" and "api_secret" fields. Resolved values go through cache so
// repeated constructions within the TTL do not hit AWS.
func CredentialsFromSecret(ctx context.Context, provider secrets.Provider, cache *secrets.Cache[Credential], name string) (*CredentialStore, error) {
	if name == "" {
		return nil, &ConfigError{Field: "secret name"}
	}
	if cache != nil {
		if cred, ok := cache.Get(name); ok {
			return NewCredentialStore(cred)
		}
	}

	secretMap, err := provider.GetSecret(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve credential secret %q: %w", name, err)
	}

	cred := Credential{Key: secretMap["api_key"], Secret: secretMap["api_secret"]}
	store, err := NewCredentialStore(cred)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Put(name, cred)
	}
	return store, nil
}

// Credential returns the stored credential.
func (s *CredentialStore) Credential() Credential {
	return s.cred
}
