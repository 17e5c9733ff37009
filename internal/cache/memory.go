package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	val []byte
	exp time.Time
}

// MemoryStore is a process-local store. Expired entries are dropped on read.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && !s.now().Before(e.exp) {
		delete(s.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = s.now().Add(ttl)
	}
	s.m[key] = e
	return nil
}

// Purge drops every expired entry and returns how many were removed.
func (s *MemoryStore) Purge(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var n int64
	for k, e := range s.m {
		if !e.exp.IsZero() && !now.Before(e.exp) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemoryStore) Name() string { return BackendMemory }
func (s *MemoryStore) Close() error { return nil }
