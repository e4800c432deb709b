package tokenrepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/token"
)

var _ token.Storage = (*FakeTokenStore)(nil)

// FakeTokenStore is an in-memory token.Storage. It also counts writes so tests can
// assert that an operation did not touch storage.
type FakeTokenStore struct {
	values  map[string]string
	writes  int
	failSet error
	lock    sync.RWMutex
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{
		values: make(map[string]string),
	}
}

// NewFakeTokenStoreWith returns a store seeded with the given values.
func NewFakeTokenStoreWith(values map[string]string) *FakeTokenStore {
	s := NewFakeTokenStore()
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *FakeTokenStore) Get(_ context.Context, key string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", errors.ErrKeyNotFound
	}
	return v, nil
}

func (s *FakeTokenStore) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.failSet != nil {
		return s.failSet
	}
	s.values[key] = value
	s.writes++
	return nil
}

func (s *FakeTokenStore) Delete(_ context.Context, keys ...string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, k := range keys {
		delete(s.values, k)
	}
	s.writes++
	return nil
}

// Len returns the number of stored keys.
func (s *FakeTokenStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}

// Writes returns how many Set/Delete calls the store has seen.
func (s *FakeTokenStore) Writes() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.writes
}

// FailSets makes every later Set return err. Delete keeps working. A nil err restores
// normal behaviour.
func (s *FakeTokenStore) FailSets(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failSet = err
}
