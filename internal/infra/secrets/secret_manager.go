// internal/infra/secrets/secret_manager.go
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

var (
	ErrSecretNotConfigured = errors.New("secrets: provider not configured")
	ErrSecretEmpty         = errors.New("secrets: empty payload")
)

// accessor is the slice of *secretmanager.Client used here.
type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// Provider reads secret payloads from Secret Manager.
type Provider struct {
	client    accessor
	projectID string
}

// NewProvider wraps an existing Secret Manager client.
func NewProvider(client *secretmanager.Client, projectID string) *Provider {
	if client == nil {
		return &Provider{projectID: strings.TrimSpace(projectID)}
	}
	return &Provider{client: client, projectID: strings.TrimSpace(projectID)}
}

// ResourceName expands a bare secret id into
// projects/<project>/secrets/<id>/versions/latest. Full resource names pass
// through, and a name without a version gets "latest".
func ResourceName(projectID, secret string) (string, error) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return "", errors.New("secrets: secret id is empty")
	}
	if strings.HasPrefix(s, "projects/") {
		if !strings.Contains(s, "/versions/") {
			s += "/versions/latest"
		}
		return s, nil
	}
	pid := strings.TrimSpace(projectID)
	if pid == "" {
		return "", fmt.Errorf("%w: projectID is empty", ErrSecretNotConfigured)
	}
	return "projects/" + pid + "/secrets/" + s + "/versions/latest", nil
}

// Get returns the trimmed payload of secret.
func (p *Provider) Get(ctx context.Context, secret string) (string, error) {
	if p == nil || p.client == nil {
		return "", ErrSecretNotConfigured
	}
	name, err := ResourceName(p.projectID, secret)
	if err != nil {
		return "", err
	}

	resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	if resp == nil || resp.Payload == nil || len(resp.Payload.Data) == 0 {
		return "", fmt.Errorf("%w (%s)", ErrSecretEmpty, name)
	}
	return strings.TrimSpace(string(resp.Payload.Data)), nil
}
