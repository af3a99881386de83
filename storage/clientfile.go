package storage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/gatewarden/oauth2/entity"
)

// clientFileEntry is one client record in the registry file. Secrets are
// bcrypt hashes; plaintext secrets in the file are rejected at load time
// unless they are empty (public clients).
type clientFileEntry struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	SecretHash   string   `yaml:"secret_hash"`
	RedirectURIs []string `yaml:"redirect_uris"`
	Confidential bool     `yaml:"confidential"`
	GrantTypes   []string `yaml:"grant_types"`
}

type clientFile struct {
	Clients []clientFileEntry `yaml:"clients"`
}

// ClientFileStore is a read-only client registry loaded from a YAML file.
// It covers deployments where clients are provisioned by configuration
// management rather than dynamic registration.
type ClientFileStore struct {
	clients map[string]clientFileEntry
}

// LoadClientFile reads and validates the registry.
func LoadClientFile(path string) (*ClientFileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client file: %w", err)
	}
	return ParseClientFile(raw)
}

// ParseClientFile builds a registry from raw YAML.
func ParseClientFile(raw []byte) (*ClientFileStore, error) {
	var file clientFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse client file: %w", err)
	}
	clients := make(map[string]clientFileEntry, len(file.Clients))
	for _, c := range file.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client entry is missing an id")
		}
		if c.Confidential && c.SecretHash == "" {
			return nil, fmt.Errorf("confidential client %q has no secret_hash", c.ID)
		}
		if _, ok := clients[c.ID]; ok {
			return nil, fmt.Errorf("duplicate client id %q", c.ID)
		}
		clients[c.ID] = c
	}
	return &ClientFileStore{clients: clients}, nil
}

func (s *ClientFileStore) entry(clientID string) (clientFileEntry, bool) {
	c, ok := s.clients[clientID]
	return c, ok
}

// GetClient returns the client or nil when unknown.
func (s *ClientFileStore) GetClient(ctx context.Context, clientID string) (*entity.Client, error) {
	c, ok := s.entry(clientID)
	if !ok {
		return nil, nil
	}
	return &entity.Client{
		ID:           c.ID,
		Name:         c.Name,
		RedirectURIs: append([]string(nil), c.RedirectURIs...),
		Confidential: c.Confidential,
	}, nil
}

// ValidateClient checks the secret and grant-type allowance.
func (s *ClientFileStore) ValidateClient(ctx context.Context, clientID, clientSecret, grantType string) (bool, error) {
	c, ok := s.entry(clientID)
	if !ok {
		return false, nil
	}
	if len(c.GrantTypes) > 0 && !containsString(c.GrantTypes, grantType) {
		return false, nil
	}
	if !c.Confidential {
		return clientSecret == "", nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(clientSecret))
	return err == nil, nil
}
