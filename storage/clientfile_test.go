package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func clientFileYAML(t *testing.T) []byte {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`clients:
  - id: web-app
    name: Web App
    secret_hash: %q
    redirect_uris:
      - https://app.example.com/callback
    confidential: true
    grant_types:
      - authorization_code
      - refresh_token
  - id: cli-app
    name: CLI App
    redirect_uris:
      - https://cli.example.com/callback
`, string(hash)))
}

func TestParseClientFile(t *testing.T) {
	registry, err := ParseClientFile(clientFileYAML(t))
	require.NoError(t, err)
	ctx := context.Background()

	client, err := registry.GetClient(ctx, "web-app")
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "Web App", client.Name)
	assert.True(t, client.Confidential)
	assert.Equal(t, []string{"https://app.example.com/callback"}, client.RedirectURIs)

	missing, err := registry.GetClient(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClientFileValidation(t *testing.T) {
	registry, err := ParseClientFile(clientFileYAML(t))
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := registry.ValidateClient(ctx, "web-app", "s3cret", "authorization_code")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = registry.ValidateClient(ctx, "web-app", "wrong", "authorization_code")
	require.NoError(t, err)
	assert.False(t, ok)

	// Not in the client's grant_types allowlist.
	ok, err = registry.ValidateClient(ctx, "web-app", "s3cret", "password")
	require.NoError(t, err)
	assert.False(t, ok)

	// Public client with no allowlist: any grant, empty secret only.
	ok, err = registry.ValidateClient(ctx, "cli-app", "", "authorization_code")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = registry.ValidateClient(ctx, "cli-app", "anything", "authorization_code")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = registry.ValidateClient(ctx, "ghost", "", "authorization_code")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseClientFileRejectsBadEntries(t *testing.T) {
	_, err := ParseClientFile([]byte("clients:\n  - name: anonymous\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing an id")

	_, err = ParseClientFile([]byte("clients:\n  - id: web-app\n    confidential: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_hash")

	_, err = ParseClientFile([]byte("clients:\n  - id: dup\n  - id: dup\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = ParseClientFile([]byte("clients: [not a mapping"))
	require.Error(t, err)
}

func TestLoadClientFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, clientFileYAML(t), 0o600))

	registry, err := LoadClientFile(path)
	require.NoError(t, err)

	client, gerr := registry.GetClient(context.Background(), "cli-app")
	require.NoError(t, gerr)
	require.NotNil(t, client)
	assert.False(t, client.Confidential)

	_, err = LoadClientFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
