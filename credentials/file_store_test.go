package credentials_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/studyhall/sessionkit/credentials"
	"github.com/stretchr/testify/require"
)

func testRecord() credentials.Record {
	return credentials.Record{
		AccessToken:  "T1",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func newTestStore(t *testing.T) (*credentials.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	return credentials.NewFileStore(path), path
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	record := testRecord()
	require.NoError(t, store.Save(record))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, record.AccessToken, loaded.AccessToken)
	require.Equal(t, record.RefreshToken, loaded.RefreshToken)
	require.True(t, record.ExpiresAt.Equal(loaded.ExpiresAt))
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	store, _ := newTestStore(t)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.True(t, loaded.IsEmpty())
}

func TestFileStoreCorruptionIsNoCredential(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("not json{{{"), 0o600))

	loaded, err := store.Load()
	require.NoError(t, err, "corruption must never surface as an error")
	require.True(t, loaded.IsEmpty())
}

func TestFileStoreClearIsIdempotent(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.Save(testRecord()))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "second clear must not error")

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestFileStoreOverwrite(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save(testRecord()))

	second := credentials.Record{
		AccessToken:  "T2",
		RefreshToken: "R2",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}
	require.NoError(t, store.Save(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "T2", loaded.AccessToken)
	require.Equal(t, "R2", loaded.RefreshToken)
}

func TestFileStoreSealedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.bin")
	store := credentials.NewFileStore(path, credentials.WithSealKey([]byte("machine-secret")))

	record := testRecord()
	require.NoError(t, store.Save(record))

	// The file on disk must not contain the tokens in the clear.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), record.AccessToken)
	require.NotContains(t, string(raw), record.RefreshToken)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, record.AccessToken, loaded.AccessToken)
}

func TestFileStoreSealedWrongKeyIsNoCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.bin")
	writer := credentials.NewFileStore(path, credentials.WithSealKey([]byte("key-one")))
	require.NoError(t, writer.Save(testRecord()))

	reader := credentials.NewFileStore(path, credentials.WithSealKey([]byte("key-two")))
	loaded, err := reader.Load()
	require.NoError(t, err)
	require.True(t, loaded.IsEmpty())
}

func TestRecordFreshAt(t *testing.T) {
	now := time.Now()
	record := credentials.Record{
		AccessToken: "T1",
		ExpiresAt:   now.Add(time.Minute),
	}

	require.True(t, record.FreshAt(now, 0))
	require.True(t, record.FreshAt(now, 30*time.Second))
	require.False(t, record.FreshAt(now, 2*time.Minute), "margin past expiry is stale")
	require.False(t, record.FreshAt(now.Add(2*time.Minute), 0), "expired token is stale")
	require.False(t, credentials.Record{}.FreshAt(now, 0))
	require.False(t, credentials.Record{RefreshToken: "R1"}.FreshAt(now, 0))
}
