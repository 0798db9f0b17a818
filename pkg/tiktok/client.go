package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tikresearch/pkg/errors"
	"tikresearch/pkg/logger"
	"tikresearch/pkg/ratelimit"
	"tikresearch/pkg/retry"
)

// Client talks to the research API: JSON POST requests with a bearer
// token, a rate-limiter gate, retry with backoff for transient failures,
// and a single refresh-and-retry on auth rejections.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     *TokenManager
	limiter    ratelimit.Limiter
	retryCfg   retry.Config
	logger     logger.Logger
}

// ClientOptions configures a Client
type ClientOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	RateLimiter ratelimit.Limiter
	Logger      logger.Logger
}

// NewClient creates a research API client
func NewClient(tokens *TokenManager, opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = ratelimit.NewTokenBucket(60, time.Minute)
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		tokens:     tokens,
		limiter:    opts.RateLimiter,
		retryCfg: retry.Config{
			MaxAttempts: opts.MaxRetries,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:    opts.BaseDelay,
				MaxDelay:     opts.MaxDelay,
				Multiplier:   2.0,
				JitterFactor: 0.1,
			},
			RetryIf: retry.DefaultRetryIf,
			Logger:  opts.Logger,
		},
		logger: opts.Logger,
	}
}

// BaseURL returns the configured API base URL
func (c *Client) BaseURL() string { return c.baseURL }

// UserInfo fetches a single user profile
func (c *Client) UserInfo(ctx context.Context, username string) (*UserProfile, error) {
	reqURL := EndpointURL(c.baseURL, UserInfoEndpoint, UserFields)

	var profile UserProfile
	if err := c.Post(ctx, reqURL, &userInfoRequest{Username: username}, &profile); err != nil {
		return nil, err
	}
	profile.Username = username
	return &profile, nil
}

// queryVideos fetches one page of the video query endpoint
func (c *Client) queryVideos(ctx context.Context, req *videoQueryRequest) (*videoQueryData, error) {
	reqURL := EndpointURL(c.baseURL, VideoQueryEndpoint, VideoFields)

	var data videoQueryData
	if err := c.Post(ctx, reqURL, req, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// listComments fetches one page of the comment list endpoint
func (c *Client) listComments(ctx context.Context, req *commentListRequest) (*commentListData, error) {
	reqURL := EndpointURL(c.baseURL, CommentListEndpoint, CommentFields)

	var data commentListData
	if err := c.Post(ctx, reqURL, req, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Post sends an authenticated JSON POST and decodes the envelope's data
// object into out. Transient failures are retried with backoff; a 401/403
// triggers one token refresh and a single retry of the identical request
// before failing hard.
func (c *Client) Post(ctx context.Context, reqURL string, body interface{}, out interface{}) error {
	refreshed := false

	op := func() error {
		err := c.post(ctx, reqURL, body, out)
		if err == nil {
			return nil
		}

		var apiErr *errors.Error
		if goerrors.As(err, &apiErr) && apiErr.Type == errors.ErrorTypeAuth && !refreshed {
			refreshed = true
			c.logger.WarnWithFields("request unauthorized, refreshing token and retrying once", map[string]interface{}{
				"url":    reqURL,
				"status": apiErr.Code,
			})
			c.tokens.Invalidate()
			return c.post(ctx, reqURL, body, out)
		}
		return err
	}

	cfg := c.retryCfg
	cfg.Context = ctx
	return retry.Do(op, &cfg)
}

// post performs a single request attempt
func (c *Client) post(ctx context.Context, reqURL string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(errors.ErrorTypeParsing, "failed to encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return errors.New(errors.ErrorTypeParsing, "failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"url":   reqURL,
			"error": err.Error(),
		})
		return errors.New(errors.ErrorTypeNetwork, "network error: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.New(errors.ErrorTypeNetwork, "failed to read response: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":         reqURL,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return errors.New(errors.ErrorTypeParsing, "unparseable response body: %v", err)
	}
	if env.Error != nil && env.Error.Code != "" && env.Error.Code != "ok" {
		return envelopeError(env.Error)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.New(errors.ErrorTypeParsing, "unparseable data object: %v", err)
		}
	}
	return nil
}

// statusError maps a non-2xx HTTP status to a typed error
func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewWithCode(errors.ErrorTypeAuth, status, "request unauthorized")
	case status == http.StatusTooManyRequests:
		return errors.NewWithCode(errors.ErrorTypeRateLimit, status, "rate limit exceeded")
	case status == http.StatusNotFound:
		return errors.NewWithCode(errors.ErrorTypeNotFound, status, "endpoint or resource not found")
	case status >= 500:
		return errors.NewWithCode(errors.ErrorTypeServerError, status, "server returned status %d", status)
	default:
		// Other 4xx are permanent rejections of this request
		return errors.NewWithCode(errors.ErrorTypeInvalidInput, status, "request rejected with status %d", status)
	}
}

// envelopeError maps the vendor error object to a typed error
func envelopeError(apiErr *apiError) error {
	var errType errors.ErrorType
	switch apiErr.Code {
	case "access_token_invalid", "token_expired":
		errType = errors.ErrorTypeAuth
	case "rate_limit_exceeded":
		errType = errors.ErrorTypeRateLimit
	case "internal_error":
		errType = errors.ErrorTypeServerError
	case "invalid_params":
		errType = errors.ErrorTypeInvalidInput
	default:
		errType = errors.ErrorTypeUnknown
	}
	return errors.New(errType, "api error %s: %s (log_id %s)", apiErr.Code, apiErr.Message, apiErr.LogID)
}
