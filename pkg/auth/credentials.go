package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credentials holds the research API client key and secret. Immutable for
// the lifetime of a run.
type Credentials struct {
	ClientKey    string    `json:"client_key"`
	ClientSecret string    `json:"client_secret"`
	LastModified time.Time `json:"last_modified"`
}

var (
	// ErrCredentialsNotFound indicates no stored credentials exist
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrStoreUnavailable indicates the store cannot be used on this system
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrInvalidCredentials indicates incomplete or malformed credentials
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store is the interface for storing and retrieving API credentials
type Store interface {
	// Save persists the credentials
	Save(creds *Credentials) error

	// Load retrieves the stored credentials
	Load() (*Credentials, error)

	// Delete removes the stored credentials
	Delete() error

	// Available reports whether credentials exist in this store
	Available() bool
}

// Manager handles credential storage with fallback mechanisms: system
// keychain first, then an encrypted file, then read-only environment
// variables.
type Manager struct {
	stores []Store
}

// NewManager creates a credential manager with the default store chain
func NewManager() (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"), DefaultPassphrase)
	if err == nil {
		stores = append(stores, encryptedStore)
	}

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager backed by an explicit store chain
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Save stores credentials using the first store that accepts them
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil || creds.ClientKey == "" || creds.ClientSecret == "" {
		return ErrInvalidCredentials
	}

	creds.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Save(creds); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Load retrieves credentials from the first store that has them
func (m *Manager) Load() (*Credentials, error) {
	for _, store := range m.stores {
		creds, err := store.Load()
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
	}
	return nil, ErrCredentialsNotFound
}

// Delete removes credentials from every store that holds them
func (m *Manager) Delete() error {
	var lastErr error
	deleted := false
	for _, store := range m.stores {
		if !store.Available() {
			continue
		}
		if err := store.Delete(); err != nil {
			if !errors.Is(err, ErrStoreUnavailable) {
				lastErr = err
			}
			continue
		}
		deleted = true
	}
	if !deleted && lastErr != nil {
		return lastErr
	}
	if !deleted {
		return ErrCredentialsNotFound
	}
	return nil
}

// Available reports whether any store holds credentials
func (m *Manager) Available() bool {
	for _, store := range m.stores {
		if store.Available() {
			return true
		}
	}
	return false
}

// getConfigDir returns the per-user configuration directory
func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tikresearch"), nil
}
