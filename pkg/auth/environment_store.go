package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements Store using environment variables. It is
// read-only and sits at the end of the fallback chain.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Save is not supported for environment variables
func (e *EnvironmentStore) Save(creds *Credentials) error {
	return ErrStoreUnavailable
}

// Load gets credentials from TIKTOK_CLIENT_KEY / TIKTOK_CLIENT_SECRET
func (e *EnvironmentStore) Load() (*Credentials, error) {
	key := os.Getenv("TIKTOK_CLIENT_KEY")
	secret := os.Getenv("TIKTOK_CLIENT_SECRET")

	if key == "" || secret == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Credentials{
		ClientKey:    key,
		ClientSecret: secret,
		LastModified: time.Now(),
	}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete() error {
	return ErrStoreUnavailable
}

// Available checks if environment credentials exist
func (e *EnvironmentStore) Available() bool {
	return os.Getenv("TIKTOK_CLIENT_KEY") != "" && os.Getenv("TIKTOK_CLIENT_SECRET") != ""
}
