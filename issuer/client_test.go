package issuer_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studyhall/sessionkit/issuer"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *issuer.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return issuer.New(srv.URL,
		issuer.WithNowTime(func() time.Time { return testNow }),
		issuer.WithTimeout(2*time.Second),
	)
}

func tokenHandler(t *testing.T, wantPath string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, wantPath, r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":      "T1",
			"refreshToken":     "R1",
			"expiresInSeconds": 3600,
		})
	}
}

func TestLoginSuccess(t *testing.T) {
	client := newTestClient(t, tokenHandler(t, "/auth/login"))

	record, err := client.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, "T1", record.AccessToken)
	require.Equal(t, "R1", record.RefreshToken)
	require.True(t, record.ExpiresAt.Equal(testNow.Add(time.Hour)))
}

func TestLoginSendsDeviceID(t *testing.T) {
	var body struct {
		Identifier string `json:"identifier"`
		Secret     string `json:"secret"`
		DeviceID   string `json:"deviceId"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "T1", "refreshToken": "R1", "expiresInSeconds": 60,
		})
	})

	_, err := client.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, "alice", body.Identifier)
	require.Equal(t, "pw", body.Secret)
	require.NotEmpty(t, body.DeviceID)
}

func TestLoginRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"kind": "invalid_credentials", "message": "unknown user",
		})
	})

	_, err := client.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, issuer.ErrInvalidCredentials)
	require.NotErrorIs(t, err, issuer.ErrServiceUnavailable)
}

func TestLoginServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, issuer.ErrServiceUnavailable)
}

func TestRenewSuccess(t *testing.T) {
	client := newTestClient(t, tokenHandler(t, "/auth/refresh"))

	record, err := client.Renew(context.Background(), "R0")
	require.NoError(t, err)
	require.Equal(t, "T1", record.AccessToken)
}

func TestRenewRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"kind": "refresh_rejected", "message": "token revoked",
		})
	})

	_, err := client.Renew(context.Background(), "R0")
	require.ErrorIs(t, err, issuer.ErrRefreshRejected)
}

func TestRenewNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listening any more

	client := issuer.New(srv.URL, issuer.WithTimeout(time.Second))
	_, err := client.Renew(context.Background(), "R0")
	require.ErrorIs(t, err, issuer.ErrServiceUnavailable)
}

func TestTimeoutIsServiceUnavailable(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read; otherwise
		// it never observes the client disconnect and Close hangs forever.
		_, _ = io.Copy(io.Discard, r.Body)
		started <- struct{}{}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	client := issuer.New(srv.URL, issuer.WithTimeout(50*time.Millisecond))
	_, err := client.Renew(context.Background(), "R0")
	require.ErrorIs(t, err, issuer.ErrServiceUnavailable, "a hung call must be bounded")
	<-started
}

func TestMalformedTokenResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	})

	_, err := client.Login(context.Background(), "alice", "pw")
	require.ErrorIs(t, err, issuer.ErrServiceUnavailable)
}

func TestLogoutSendsBearer(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/logout", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
	})

	require.NoError(t, client.Logout(context.Background(), "T1"))
	require.Equal(t, "Bearer T1", gotAuth)
}

func TestLogoutFailureIsReported(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.Logout(context.Background(), "T1")
	require.ErrorIs(t, err, issuer.ErrServiceUnavailable)
}
