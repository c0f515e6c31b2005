package secrets

import (
	"context"
	"errors"
	"testing"

	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccessor struct {
	names   []string
	payload string
	err     error
}

func (f *fakeAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.names = append(f.names, req.GetName())
	if f.err != nil {
		return nil, f.err
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(f.payload)},
	}, nil
}

func TestResourceName(t *testing.T) {
	n, err := ResourceName("proj", "db-password")
	require.NoError(t, err)
	assert.Equal(t, "projects/proj/secrets/db-password/versions/latest", n)

	n, err = ResourceName("", "projects/x/secrets/y")
	require.NoError(t, err)
	assert.Equal(t, "projects/x/secrets/y/versions/latest", n)

	n, err = ResourceName("", "projects/x/secrets/y/versions/3")
	require.NoError(t, err)
	assert.Equal(t, "projects/x/secrets/y/versions/3", n)

	_, err = ResourceName("", "db-password")
	assert.ErrorIs(t, err, ErrSecretNotConfigured)

	_, err = ResourceName("proj", " ")
	assert.Error(t, err)
}

func TestProvider_Get(t *testing.T) {
	fa := &fakeAccessor{payload: "s3cret\n"}
	p := &Provider{client: fa, projectID: "proj"}

	v, err := p.Get(context.Background(), "db-password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)
	assert.Equal(t, []string{"projects/proj/secrets/db-password/versions/latest"}, fa.names)
}

func TestProvider_GetErrors(t *testing.T) {
	var nilP *Provider
	_, err := nilP.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSecretNotConfigured)

	p := &Provider{client: &fakeAccessor{err: errors.New("permission denied")}, projectID: "proj"}
	_, err = p.Get(context.Background(), "x")
	assert.ErrorContains(t, err, "permission denied")

	p = &Provider{client: &fakeAccessor{}, projectID: "proj"}
	_, err = p.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSecretEmpty)
}
