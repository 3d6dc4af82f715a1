// Package statestore holds the latest data published by integration plugins,
// keyed by category (e.g. "jane doe_grades"). Downstream consumers read it;
// plugins replace their own keys wholesale on every refresh.
package statestore

import "sync"

type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

func New() *Store {
	return &Store{data: map[string]any{}}
}

func (s *Store) Set(key string, v any) {
	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
}

// Replace swaps all entries with the given key prefix for the new set.
// Keys under the prefix that are absent from entries are removed, so stale
// categories don't outlive the refresh that produced them.
func (s *Store) Replace(prefix string, entries map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		if hasPrefix(k, prefix) {
			if _, keep := entries[k]; !keep {
				delete(s.data, k)
			}
		}
	}
	for k, v := range entries {
		s.data[k] = v
	}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	return v, ok
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	s.mu.RUnlock()
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
