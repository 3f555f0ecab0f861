package session

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource adapts the Manager to oauth2.TokenSource so it can be plugged
// into any client library that consumes one. Token goes through
// EnsureFreshToken and therefore shares the single-flight renewal path.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, m: m}
}

type managerTokenSource struct {
	ctx context.Context
	m   *Manager
}

var _ oauth2.TokenSource = (*managerTokenSource)(nil)

func (ts *managerTokenSource) Token() (*oauth2.Token, error) {
	accessToken, err := ts.m.EnsureFreshToken(ts.ctx)
	if err != nil {
		return nil, err
	}

	ts.m.mu.Lock()
	record := ts.m.loadLocked()
	ts.m.mu.Unlock()

	return &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: record.RefreshToken,
		Expiry:       record.ExpiresAt,
	}, nil
}
