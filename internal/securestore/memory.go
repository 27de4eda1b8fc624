package securestore

import (
	"context"
	"sync"

	"otpkeeper/internal/common"
)

type memoryRecord struct {
	data   []byte
	locked bool
}

// MemoryStore is an in-process Store used by tests and as a scratch vault.
// The Fail* maps inject errors per record type so callers can exercise
// partial-failure paths without a real database.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[RecordType]map[string]memoryRecord
	elevation Elevation

	FailGet    map[RecordType]error
	FailPut    map[RecordType]error
	FailDelete map[RecordType]error
}

// NewMemoryStore returns an empty store without locking support.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    map[RecordType]map[string]memoryRecord{},
		FailGet:    map[RecordType]error{},
		FailPut:    map[RecordType]error{},
		FailDelete: map[RecordType]error{},
	}
}

// NewLockingMemoryStore returns a store that honors locked records, gated
// by the given elevation.
func NewLockingMemoryStore(elevation Elevation) *MemoryStore {
	s := NewMemoryStore()
	s.elevation = elevation
	return s
}

func (s *MemoryStore) Get(_ context.Context, recordType RecordType, key string) ([]byte, error) {
	if err := s.FailGet[recordType]; err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordType][key]
	if !ok {
		return nil, common.ErrNotFound
	}
	if record.locked && (s.elevation == nil || !s.elevation.Valid()) {
		return nil, common.ErrLocked
	}

	data := make([]byte, len(record.data))
	copy(data, record.data)
	return data, nil
}

func (s *MemoryStore) Put(_ context.Context, recordType RecordType, key string, data []byte, locked bool) error {
	if err := s.FailPut[recordType]; err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[recordType] == nil {
		s.records[recordType] = map[string]memoryRecord{}
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	s.records[recordType][key] = memoryRecord{data: stored, locked: locked && s.LockingSupported()}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, recordType RecordType, key string) error {
	if err := s.FailDelete[recordType]; err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[recordType], key)
	return nil
}

func (s *MemoryStore) List(_ context.Context, recordType RecordType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records[recordType]))
	for key := range s.records[recordType] {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *MemoryStore) LockingSupported() bool {
	return s.elevation != nil
}
