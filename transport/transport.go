// Package transport implements the authenticated request interceptor: an
// http.RoundTripper that attaches the current bearer token and coordinates
// recovery from authorization failures through the session manager's
// single-flight renewal path.
package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/studyhall/sessionkit/session"
)

const requestIDHeader = "X-Request-ID"

// SessionManager is the slice of session.Manager the interceptor needs. It
// never writes credentials itself; all renewal and logout goes through the
// manager.
type SessionManager interface {
	EnsureFreshToken(ctx context.Context) (string, error)
	ForceRenew(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// Transport attaches bearer credentials to outgoing requests. On a 401 it
// triggers exactly one coordinated renewal and retries the request once with
// the new token; a second consecutive 401 is terminal and forces a logout.
type Transport struct {
	base     http.RoundTripper
	sessions SessionManager
	log      zerolog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying round tripper.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = rt
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) {
		t.log = log
	}
}

var _ http.RoundTripper = (*Transport)(nil)

// New creates a Transport bound to the given session manager.
func New(sessions SessionManager, options ...Option) (*Transport, error) {
	if sessions == nil {
		return nil, errors.New("[transport.New] session manager is required")
	}
	t := &Transport{
		base:     http.DefaultTransport,
		sessions: sessions,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// Client returns an http.Client whose requests go through the interceptor.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, err := t.sessions.EnsureFreshToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Transport.RoundTrip] acquire token")
	}

	requestID := req.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	resp, err := t.base.RoundTrip(t.authorized(req, token, requestID))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if req.Body != nil && req.GetBody == nil {
		// The body is gone and cannot be replayed; hand the 401 back rather
		// than retrying a truncated request.
		t.log.Warn().Str("request_id", requestID).Msg("401 on non-replayable request, not retrying")
		return resp, nil
	}
	drainAndClose(resp.Body)

	t.log.Debug().Str("request_id", requestID).Msg("401 received, renewing token")
	token, err = t.sessions.ForceRenew(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Transport.RoundTrip] renew after 401")
	}

	retry := t.authorized(req, token, requestID)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "[Transport.RoundTrip] replay request body")
		}
		retry.Body = body
	}

	resp, err = t.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Second consecutive authorization failure: the credential is
		// permanently invalid. Stop retrying, end the session.
		drainAndClose(resp.Body)
		if lerr := t.sessions.Logout(ctx); lerr != nil {
			t.log.Warn().Err(lerr).Msg("forced logout failed")
		}
		return nil, errors.Wrap(session.ErrSessionExpired, "[Transport.RoundTrip] authorization failed after renewal")
	}
	return resp, nil
}

func (t *Transport) authorized(req *http.Request, token, requestID string) *http.Request {
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	out.Header.Set(requestIDHeader, requestID)
	return out
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
