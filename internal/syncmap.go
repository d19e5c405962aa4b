package internal

import "sync"

// SyncMap is a typed wrapper around sync.Map.
type SyncMap[K comparable, V any] struct {
	sync.Map
}

func (s *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	v, o := s.Map.Load(key)
	if !o {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (s *SyncMap[K, V]) Store(key K, value V) {
	s.Map.Store(key, value)
}

func (s *SyncMap[K, V]) Range(f func(key K, value V) bool) {
	s.Map.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

func (s *SyncMap[K, V]) Delete(key K) {
	s.Map.Delete(key)
}

// Length counts entries by walking the map.
func (s *SyncMap[K, V]) Length() int {
	n := 0
	s.Map.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}
