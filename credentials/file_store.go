package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const fileMode = 0o600

// FileStore persists the record as a single JSON file, written atomically via
// a temp file and rename so a crash mid-write never leaves a torn record.
type FileStore struct {
	path    string
	sealKey []byte // derived AEAD key, nil when sealing is disabled
	log     zerolog.Logger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithSealKey encrypts the record at rest with a key derived from secret.
// A file that fails to decrypt is treated as corrupt, i.e. no credential.
func WithSealKey(secret []byte) FileStoreOption {
	return func(fs *FileStore) {
		kdf := hkdf.New(sha256.New, secret, nil, []byte("sessionkit credential store"))
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(kdf, key); err != nil {
			// hkdf on sha256 cannot fail for a single key-sized read
			panic(err)
		}
		fs.sealKey = key
	}
}

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(log zerolog.Logger) FileStoreOption {
	return func(fs *FileStore) {
		fs.log = log
	}
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by the file at path. The parent
// directory is created on first Save.
func NewFileStore(path string, options ...FileStoreOption) *FileStore {
	fs := &FileStore{
		path: path,
		log:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(fs)
	}
	return fs
}

// Save persists the record atomically.
func (fs *FileStore) Save(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "[FileStore.Save] marshal record")
	}
	if fs.sealKey != nil {
		if data, err = fs.seal(data); err != nil {
			return errors.Wrap(err, "[FileStore.Save] seal record")
		}
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		fs.log.Warn().Err(err).Str("path", fs.path).Msg("credential store unavailable")
		return errors.Wrap(ErrStorageUnavailable, err.Error())
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		fs.log.Warn().Err(err).Str("path", fs.path).Msg("credential store unavailable")
		return errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		fs.log.Warn().Err(err).Str("path", fs.path).Msg("credential store unavailable")
		return errors.Wrap(ErrStorageUnavailable, err.Error())
	}
	return nil
}

// Load returns the stored record. A missing or unreadable-as-a-record file
// yields the zero Record; only medium-level read failures return an error,
// and even then the zero Record is returned alongside it.
func (fs *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return Record{}, nil
	}
	if err != nil {
		fs.log.Warn().Err(err).Str("path", fs.path).Msg("credential store unavailable")
		return Record{}, errors.Wrap(ErrStorageUnavailable, err.Error())
	}

	if fs.sealKey != nil {
		if data, err = fs.unseal(data); err != nil {
			fs.log.Warn().Str("path", fs.path).Msg("stored credentials undecryptable, discarding")
			return Record{}, nil
		}
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		fs.log.Warn().Str("path", fs.path).Msg("stored credentials unparsable, discarding")
		return Record{}, nil
	}
	return record, nil
}

// Clear removes the stored record. Clearing an already-empty store is a no-op.
func (fs *FileStore) Clear() error {
	err := os.Remove(fs.path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	fs.log.Warn().Err(err).Str("path", fs.path).Msg("credential store unavailable")
	return errors.Wrap(ErrStorageUnavailable, err.Error())
}

func (fs *FileStore) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(fs.sealKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (fs *FileStore) unseal(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(fs.sealKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed record too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
