package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/studyhall/sessionkit/session"
	"github.com/stretchr/testify/require"
)

func TestTokenSourceExposesCurrentPair(t *testing.T) {
	f := newFixture(t)
	record := f.seedAuthenticated(t, time.Hour)

	ts := f.manager.TokenSource(context.Background())
	token, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, record.AccessToken, token.AccessToken)
	require.Equal(t, "R1", token.RefreshToken)
	require.Equal(t, "Bearer", token.TokenType)
	require.True(t, token.Expiry.Equal(record.ExpiresAt))
}

func TestTokenSourceFailsWhenSignedOut(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Initialize(context.Background()))

	_, err := f.manager.TokenSource(context.Background()).Token()
	require.ErrorIs(t, err, session.ErrSessionExpired)
}
