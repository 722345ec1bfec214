package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// ProviderGoogle names the Google identity provider.
	ProviderGoogle = "google"

	defaultUserInfoTimeout = 5 * time.Second
	maxUserInfoBodyBytes   = 1 << 20
)

var (
	// ErrProviderRejected indicates the provider refused the access token.
	ErrProviderRejected = errors.New("auth: provider rejected access token")
	// ErrProviderUnavailable indicates the provider could not be reached or answered unintelligibly.
	ErrProviderUnavailable = errors.New("auth: provider unavailable")
	// ErrIncompleteProfile indicates the provider response lacks a subject id or email.
	ErrIncompleteProfile = errors.New("auth: provider profile incomplete")

	errMissingAccessToken = errors.New("access token must not be empty")
	errMissingUserInfoURL = errors.New("userinfo url configuration required")
	// ErrInvalidUserInfoConfig wraps configuration problems reported by NewGoogleUserInfoClient.
	ErrInvalidUserInfoConfig = errors.New("auth: invalid google userinfo config")
)

// ProviderProfile is the closed set of provider claims the account linking flow relies on.
type ProviderProfile struct {
	Provider   string
	SubjectID  string
	Email      string
	GivenName  string
	FamilyName string
	// RawClaims is the provider payload exactly as received, kept as a snapshot on the social account.
	RawClaims json.RawMessage
}

// GoogleUserInfoConfig bundles configuration required to instantiate a GoogleUserInfoClient.
type GoogleUserInfoConfig struct {
	UserInfoURL string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Logger      *zap.Logger
}

// GoogleUserInfoClient exchanges Google OAuth access tokens for profile claims.
type GoogleUserInfoClient struct {
	userInfoURL string
	httpClient  *http.Client
	timeout     time.Duration
	logger      *zap.Logger
}

// NewGoogleUserInfoClient constructs a client with validated configuration.
func NewGoogleUserInfoClient(cfg GoogleUserInfoConfig) (*GoogleUserInfoClient, error) {
	userInfoURL := strings.TrimSpace(cfg.UserInfoURL)
	if userInfoURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserInfoConfig, errMissingUserInfoURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUserInfoTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GoogleUserInfoClient{
		userInfoURL: userInfoURL,
		httpClient:  httpClient,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

type googleUserInfo struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// FetchProfile calls the userinfo endpoint with accessToken as a bearer credential.
func (c *GoogleUserInfoClient) FetchProfile(ctx context.Context, accessToken string) (ProviderProfile, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return ProviderProfile{}, fmt.Errorf("%w: %v", ErrProviderRejected, errMissingAccessToken)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxUserInfoBodyBytes))
	if err != nil {
		return ProviderProfile{}, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	if response.StatusCode != http.StatusOK {
		c.logger.Debug("userinfo request rejected", zap.Int("status", response.StatusCode))
		return ProviderProfile{}, fmt.Errorf("%w: status %d", ErrProviderRejected, response.StatusCode)
	}

	var claims googleUserInfo
	if err := json.Unmarshal(body, &claims); err != nil {
		return ProviderProfile{}, fmt.Errorf("%w: decode userinfo: %v", ErrProviderUnavailable, err)
	}

	var compacted bytes.Buffer
	if err := json.Compact(&compacted, body); err != nil {
		return ProviderProfile{}, fmt.Errorf("%w: compact userinfo: %v", ErrProviderUnavailable, err)
	}

	return newGoogleProfile(claims, compacted.Bytes())
}

func newGoogleProfile(claims googleUserInfo, raw []byte) (ProviderProfile, error) {
	subject := strings.TrimSpace(claims.Subject)
	email := strings.TrimSpace(claims.Email)
	if subject == "" {
		return ProviderProfile{}, fmt.Errorf("%w: missing sub", ErrIncompleteProfile)
	}
	if email == "" {
		return ProviderProfile{}, fmt.Errorf("%w: missing email", ErrIncompleteProfile)
	}
	return ProviderProfile{
		Provider:   ProviderGoogle,
		SubjectID:  subject,
		Email:      email,
		GivenName:  strings.TrimSpace(claims.GivenName),
		FamilyName: strings.TrimSpace(claims.FamilyName),
		RawClaims:  json.RawMessage(raw),
	}, nil
}
