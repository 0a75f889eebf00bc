package secrets

import "context"

// Provider fetches secret material for the Expander client: API credentials
// and any other JSON-map secrets. AWS Secrets Manager is the production
// implementation; tests supply fakes.
type Provider interface {
	// GetSecret fetches the secret stored under name, decoded as a flat
	// JSON string map.
	GetSecret(ctx context.Context, name string) (map[string]string, error)

	// ListSecrets returns the names of every secret starting with prefix,
	// used for credential discovery when only a naming convention is known.
	ListSecrets(ctx context.Context, prefix string) ([]string, error)
}
