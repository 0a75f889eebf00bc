package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

const listPageSize = 100

// AWSProvider is the Secrets Manager implementation of Provider.
type AWSProvider struct {
	client *secretsmanager.Client
}

// NewAWSProvider builds a Provider backed by AWS Secrets Manager in region,
// using the default credential chain.
func NewAWSProvider(ctx context.Context, region string) (Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// GetSecret fetches and decodes one secret. Expander credential secrets are
// JSON maps, e.g. {"api_key": "...", "api_secret": "..."}.
func (p *AWSProvider) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %q: %w", name, err)
	}

	values := map[string]string{}
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &values); err != nil {
		return nil, fmt.Errorf("decode secret %q: %w", name, err)
	}
	return values, nil
}

// ListSecrets walks every list page and returns the names matching prefix.
func (p *AWSProvider) ListSecrets(ctx context.Context, prefix string) ([]string, error) {
	paginator := secretsmanager.NewListSecretsPaginator(p.client, &secretsmanager.ListSecretsInput{
		Filters: []types.Filter{{
			Key:    types.FilterNameStringTypeName,
			Values: []string{prefix},
		}},
		MaxResults: aws.Int32(listPageSize),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list secrets %q: %w", prefix, err)
		}
		for _, entry := range page.SecretList {
			names = append(names, aws.ToString(entry.Name))
		}
	}
	return names, nil
}
