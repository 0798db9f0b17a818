package auth

// MockStore is an in-memory Store implementation for tests
type MockStore struct {
	creds   *Credentials
	saveErr error
	loadErr error
}

// NewMockStore creates an empty in-memory store
func NewMockStore() *MockStore {
	return &MockStore{}
}

// SetErrors configures the store to fail with the given errors
func (m *MockStore) SetErrors(saveErr, loadErr error) {
	m.saveErr = saveErr
	m.loadErr = loadErr
}

func (m *MockStore) Save(creds *Credentials) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if creds == nil || creds.ClientKey == "" || creds.ClientSecret == "" {
		return ErrInvalidCredentials
	}
	copied := *creds
	m.creds = &copied
	return nil
}

func (m *MockStore) Load() (*Credentials, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.creds == nil {
		return nil, ErrCredentialsNotFound
	}
	copied := *m.creds
	return &copied, nil
}

func (m *MockStore) Delete() error {
	if m.creds == nil {
		return ErrCredentialsNotFound
	}
	m.creds = nil
	return nil
}

func (m *MockStore) Available() bool {
	return m.creds != nil
}
