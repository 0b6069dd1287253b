package keyring

import (
	"errors"
	"fmt"
)

// SecretStore keeps the generated secrets of one application, keyed by
// parameter name. It satisfies appmodel.SecretStore.
type SecretStore struct {
	manager *Manager
	service string
}

// NewSecretStore scopes a keyring manager to an application
func NewSecretStore(manager *Manager, appName string) *SecretStore {
	return &SecretStore{
		manager: manager,
		service: ServiceName(appName),
	}
}

// NewDefaultSecretStore builds a store from the REDB_APPHOST_KEYRING_* environment
func NewDefaultSecretStore(appName string) *SecretStore {
	m := NewManager(GetBackendFromEnv(), GetDefaultKeyringPath(), GetMasterPasswordFromEnv())
	return NewSecretStore(m, appName)
}

// ServiceName returns the keyring service name used for an application
func ServiceName(appName string) string {
	return fmt.Sprintf("redb-apphost-%s", appName)
}

// GetSecret returns the stored secret and whether it exists
func (s *SecretStore) GetSecret(name string) (string, bool, error) {
	v, err := s.manager.Get(s.service, name)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	return v, true, nil
}

// SetSecret stores a secret
func (s *SecretStore) SetSecret(name, value string) error {
	if err := s.manager.Set(s.service, name, value); err != nil {
		return fmt.Errorf("failed to store secret %s: %w", name, err)
	}
	return nil
}

// DeleteSecret forgets a secret
func (s *SecretStore) DeleteSecret(name string) error {
	return s.manager.Delete(s.service, name)
}
