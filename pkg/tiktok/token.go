package tiktok

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tikresearch/pkg/auth"
	"tikresearch/pkg/errors"
	"tikresearch/pkg/logger"
)

// expiryMargin is how close to expiry a cached token may get before it is
// refreshed. Keeps a token from expiring mid-request.
const expiryMargin = 60 * time.Second

// TokenManager caches the bearer token for the research API and refreshes
// it lazily. It is the only mutable shared state within a run.
type TokenManager struct {
	creds      auth.Credentials
	tokenURL   string
	httpClient *http.Client
	logger     logger.Logger

	// now is injectable for tests
	now func() time.Time

	token  string
	expiry time.Time
}

// tokenResponse is the token endpoint's payload. Tokens are typically
// valid for 7200 seconds.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// NewTokenManager creates a token manager for the given credentials
func NewTokenManager(creds auth.Credentials, baseURL string, timeout time.Duration, log logger.Logger) *TokenManager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &TokenManager{
		creds:      creds,
		tokenURL:   baseURL + TokenEndpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		now:        time.Now,
	}
}

// Token returns a valid bearer token, refreshing only when none is cached
// or the cached one is within the expiry margin.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if m.token != "" && m.now().Add(expiryMargin).Before(m.expiry) {
		return m.token, nil
	}
	return m.refresh(ctx)
}

// Invalidate drops the cached token so the next call refreshes. Called
// when the API rejects a request as unauthorized.
func (m *TokenManager) Invalidate() {
	m.token = ""
	m.expiry = time.Time{}
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	if m.creds.ClientKey == "" || m.creds.ClientSecret == "" {
		return "", errors.New(errors.ErrorTypeAuth, "missing client key or secret")
	}

	form := url.Values{}
	form.Set("client_key", m.creds.ClientKey)
	form.Set("client_secret", m.creds.ClientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.New(errors.ErrorTypeAuth, "failed to build token request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	m.logger.Debug("refreshing access token")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", errors.New(errors.ErrorTypeAuth, "token request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.New(errors.ErrorTypeAuth, "failed to read token response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewWithCode(errors.ErrorTypeAuth, resp.StatusCode,
			"token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", errors.New(errors.ErrorTypeAuth, "unparseable token response: %v", err)
	}
	if tr.Error != "" {
		return "", errors.New(errors.ErrorTypeAuth, "token request rejected: %s: %s", tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return "", errors.New(errors.ErrorTypeAuth, "token response missing access_token or expires_in")
	}

	m.token = tr.AccessToken
	m.expiry = m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	m.logger.DebugWithFields("access token refreshed", map[string]interface{}{
		"expires_in": tr.ExpiresIn,
	})
	return m.token, nil
}
