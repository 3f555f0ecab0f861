package credentials

import "sync"

// MemoryStore keeps the record in process memory. It satisfies the same
// contract as FileStore but nothing survives a restart; useful for tests and
// for running without durable storage.
type MemoryStore struct {
	mu     sync.RWMutex
	record Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) Save(record Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.record = record
	return nil
}

func (ms *MemoryStore) Load() (Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.record, nil
}

func (ms *MemoryStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.record = Record{}
	return nil
}
