package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prompt-request/go-services/internal/apierror"
)

// MemoryStorage is an in-memory ObjectStore for tests and the dev server.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]memoryObject

	failPut    bool
	failGet    bool
	failDelete bool
}

type memoryObject struct {
	data        []byte
	contentType string
}

var _ ObjectStore = (*MemoryStorage)(nil)

var errInjected = errors.New("injected failure")

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func (s *MemoryStorage) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return apierror.Storage(fmt.Errorf("put %s: %w", key, errInjected))
	}
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, apierror.Storage(fmt.Errorf("get %s: %w", key, errInjected))
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, apierror.Storage(fmt.Errorf("get %s: no such key", key))
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return apierror.Storage(fmt.Errorf("delete %s: %w", key, errInjected))
	}
	delete(s.objects, key)
	return nil
}

// Has reports whether key is stored.
func (s *MemoryStorage) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// ContentType returns the content type recorded for key.
func (s *MemoryStorage) ContentType(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key].contentType
}

// Len returns the number of stored objects.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// SetFailures makes Put, Get and Delete fail with a storage error while set.
func (s *MemoryStorage) SetFailures(put, get, del bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut, s.failGet, s.failDelete = put, get, del
}
