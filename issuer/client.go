// Package issuer wraps the identity service's token endpoints: credential
// exchange, refresh exchange and best-effort logout notification.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studyhall/sessionkit/credentials"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	logoutPath  = "/auth/logout"

	defaultTimeout = 10 * time.Second
)

// tokenResponse is the identity service's success body.
type tokenResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// errorResponse is the identity service's structured failure body.
type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	DeviceID   string `json:"deviceId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Client talks to the identity service. Every call carries a bounded timeout;
// exceeding it is reported as ErrServiceUnavailable, never left pending.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	deviceID   string
	nowTime    func() time.Time
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds each network call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New creates a Client for the identity service at baseURL. A random device
// identifier is generated per client and sent with every login so the service
// can correlate sessions from the same installation.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
		deviceID:   uuid.New().String(),
		nowTime:    time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Login exchanges user-supplied credentials for a token pair.
// Fails with ErrInvalidCredentials on rejection or ErrServiceUnavailable on
// network trouble; only the latter is worth retrying.
func (c *Client) Login(ctx context.Context, identifier, secret string) (credentials.Record, error) {
	record, err := c.exchange(ctx, loginPath, loginRequest{
		Identifier: identifier,
		Secret:     secret,
		DeviceID:   c.deviceID,
	}, ErrInvalidCredentials)
	if err != nil {
		return credentials.Record{}, errors.Wrap(err, "[Client.Login] exchange")
	}
	return record, nil
}

// Renew exchanges a refresh token for a new pair. Fails with
// ErrRefreshRejected when the token is expired or revoked (terminal) or
// ErrServiceUnavailable (transient).
func (c *Client) Renew(ctx context.Context, refreshToken string) (credentials.Record, error) {
	record, err := c.exchange(ctx, refreshPath, refreshRequest{RefreshToken: refreshToken}, ErrRefreshRejected)
	if err != nil {
		return credentials.Record{}, errors.Wrap(err, "[Client.Renew] exchange")
	}
	return record, nil
}

// Logout notifies the identity service that the access token should be
// invalidated. Best effort: the error is returned for logging but callers
// must never let it block local logout.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+logoutPath, nil)
	if err != nil {
		return errors.Wrap(err, "[Client.Logout] build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(ErrServiceUnavailable, err.Error())
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= 400 {
		return errors.Wrapf(ErrServiceUnavailable, "[Client.Logout] status %d", resp.StatusCode)
	}
	return nil
}

// exchange posts body to path and decodes a token pair. rejection is the
// sentinel reported for a 4xx response; everything else that goes wrong maps
// to ErrServiceUnavailable.
func (c *Client) exchange(ctx context.Context, path string, body any, rejection error) (credentials.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return credentials.Record{}, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return credentials.Record{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return credentials.Record{}, errors.Wrap(ErrServiceUnavailable, err.Error())
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return credentials.Record{}, errors.Wrapf(ErrServiceUnavailable, "status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		var remote errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&remote); err == nil && remote.Message != "" {
			c.log.Debug().Str("kind", remote.Kind).Str("message", remote.Message).Msg("identity service rejection")
			return credentials.Record{}, errors.Wrap(rejection, remote.Message)
		}
		return credentials.Record{}, errors.Wrapf(rejection, "status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return credentials.Record{}, errors.Wrap(ErrServiceUnavailable, "malformed token response")
	}
	if tr.AccessToken == "" || tr.ExpiresInSeconds <= 0 {
		return credentials.Record{}, errors.Wrap(ErrServiceUnavailable, "incomplete token response")
	}

	return credentials.Record{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.nowTime().Add(time.Duration(tr.ExpiresInSeconds) * time.Second),
	}, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
