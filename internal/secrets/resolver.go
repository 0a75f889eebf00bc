package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/expanse-labs/expander-go/internal/auth"
	pkgsecrets "github.com/expanse-labs/expander-go/pkg/secrets"
)

// Resolver resolves Expander API credentials from a secrets Provider, caching
// results in-memory so repeated resolutions within the TTL do not hit AWS.
//
// A secret name ending in "/" is treated as a prefix: the resolver discovers
// the matching secrets (naming convention {env}/expander/{account}) and
// requires exactly one, so deployments can point at an environment without
// hardcoding the account segment.
type Resolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[auth.Credential]
}

// NewResolver constructs a credential resolver on top of provider.
func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[auth.Credential]) *Resolver {
	return &Resolver{
		logger:   logger,
		provider: provider,
		cache:    cache,
	}
}

// Resolve returns the credential store for name, discovering the concrete
// secret first when name is a prefix.
func (r *Resolver) Resolve(ctx context.Context, name string) (*auth.CredentialStore, error) {
	if strings.HasSuffix(name, "/") {
		resolved, err := r.discoverOne(ctx, name)
		if err != nil {
			return nil, err
		}
		name = resolved
	}

	store, err := auth.CredentialsFromSecret(ctx, r.provider, r.cache, name)
	if err != nil {
		return nil, err
	}
	r.logger.Info("secrets.credentials_resolved",
		zap.String("secret", name))
	return store, nil
}

// Discover lists the credential secrets under prefix.
func (r *Resolver) Discover(ctx context.Context, prefix string) ([]string, error) {
	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover secrets under %q: %w", prefix, err)
	}
	r.logger.Info("secrets.discovered",
		zap.String("prefix", prefix),
		zap.Int("count", len(names)))
	return names, nil
}

// discoverOne narrows a prefix to the single secret it must name.
func (r *Resolver) discoverOne(ctx context.Context, prefix string) (string, error) {
	names, err := r.Discover(ctx, prefix)
	if err != nil {
		return "", err
	}
	switch len(names) {
	case 0:
		return "", fmt.Errorf("no secret found under prefix %q", prefix)
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("prefix %q is ambiguous, matches %s", prefix, strings.Join(names, ", "))
	}
}
