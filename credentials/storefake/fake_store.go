// Package storefake provides a fault-injecting credentials.Store for tests.
package storefake

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/studyhall/sessionkit/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory store whose operations can be made to fail,
// simulating disabled or full browser storage.
type FakeStore struct {
	mu     sync.Mutex
	record credentials.Record

	FailSaves  bool
	FailLoads  bool
	FailClears bool

	SaveCalls  int
	LoadCalls  int
	ClearCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) Save(record credentials.Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.SaveCalls++
	if fs.FailSaves {
		return errors.Wrap(credentials.ErrStorageUnavailable, "fake save failure")
	}
	fs.record = record
	return nil
}

func (fs *FakeStore) Load() (credentials.Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.LoadCalls++
	if fs.FailLoads {
		return credentials.Record{}, errors.Wrap(credentials.ErrStorageUnavailable, "fake load failure")
	}
	return fs.record, nil
}

func (fs *FakeStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.ClearCalls++
	if fs.FailClears {
		return errors.Wrap(credentials.ErrStorageUnavailable, "fake clear failure")
	}
	fs.record = credentials.Record{}
	return nil
}

// Stored returns the current record without counting as a Load.
func (fs *FakeStore) Stored() credentials.Record {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.record
}
