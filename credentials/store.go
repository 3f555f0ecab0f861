// Package credentials owns durable persistence of the token pair. The store
// is the single source of truth read by the session manager, the route guard
// and the request interceptor; only the session manager writes to it.
package credentials

import "errors"

// ErrStorageUnavailable indicates the persistence medium rejected an
// operation (disabled, full, permission denied). Callers are expected to log
// it and continue in a degraded, session-less mode rather than crash.
var ErrStorageUnavailable = errors.New("credential storage unavailable")

// Store persists a Record across restarts.
//
// Contract:
//   - Save persists all fields atomically; readers never observe a partial write.
//   - Load returns the last saved record, or the zero Record when nothing was
//     saved or when the stored bytes fail to parse. Corruption is "no
//     credential", never an error.
//   - Clear removes everything and is idempotent.
//
// Load and Save return errors wrapping ErrStorageUnavailable only for
// medium-level failures, and even then Load still returns a usable zero Record.
type Store interface {
	Save(record Record) error
	Load() (Record, error)
	Clear() error
}
