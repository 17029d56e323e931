// Package weakset provides membership sets and maps keyed by weak pointers.
// Entries never keep their key alive: once the key is garbage collected the
// entry is evicted by a runtime cleanup.
package weakset

import (
	"runtime"
	"sync"
	"weak"
)

// Set is a weak membership set. Safe for concurrent use.
type Set[T any] struct {
	mu    sync.Mutex
	items map[weak.Pointer[T]]struct{}
}

// NewSet creates an empty Set.
func NewSet[T any]() *Set[T] {
	return &Set[T]{items: make(map[weak.Pointer[T]]struct{})}
}

// Add inserts p. It returns false if p was already a member.
func (s *Set[T]) Add(p *T) bool {
	if p == nil {
		return false
	}
	key := weak.Make(p)

	s.mu.Lock()
	if _, ok := s.items[key]; ok {
		s.mu.Unlock()
		return false
	}
	s.items[key] = struct{}{}
	s.mu.Unlock()

	runtime.AddCleanup(p, s.evict, key)
	return true
}

// Has reports whether p is a member.
func (s *Set[T]) Has(p *T) bool {
	if p == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[weak.Make(p)]
	return ok
}

// Delete removes p.
func (s *Set[T]) Delete(p *T) {
	if p == nil {
		return
	}
	s.evict(weak.Make(p))
}

// Len returns the number of entries whose key is still reachable.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.items {
		if k.Value() != nil {
			n++
		}
	}
	return n
}

func (s *Set[T]) evict(key weak.Pointer[T]) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Map associates values with weakly held keys. Values must not reference
// their key, or the key never becomes unreachable. Safe for concurrent use.
type Map[K, V any] struct {
	mu    sync.Mutex
	items map[weak.Pointer[K]]V
}

// NewMap creates an empty Map.
func NewMap[K, V any]() *Map[K, V] {
	return &Map[K, V]{items: make(map[weak.Pointer[K]]V)}
}

// Get returns the value stored for k.
func (m *Map[K, V]) Get(k *K) (V, bool) {
	var zero V
	if k == nil {
		return zero, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[weak.Make(k)]
	return v, ok
}

// Put stores v for k, replacing any previous value.
func (m *Map[K, V]) Put(k *K, v V) {
	if k == nil {
		return
	}
	key := weak.Make(k)

	m.mu.Lock()
	_, existed := m.items[key]
	m.items[key] = v
	m.mu.Unlock()

	if !existed {
		runtime.AddCleanup(k, m.evict, key)
	}
}

// Delete removes the entry for k.
func (m *Map[K, V]) Delete(k *K) {
	if k == nil {
		return
	}
	m.evict(weak.Make(k))
}

// Range calls fn for every entry whose key is still reachable, stopping
// when fn returns false.
func (m *Map[K, V]) Range(fn func(k *K, v V) bool) {
	m.mu.Lock()
	type entry struct {
		k *K
		v V
	}
	live := make([]entry, 0, len(m.items))
	for key, v := range m.items {
		if k := key.Value(); k != nil {
			live = append(live, entry{k, v})
		}
	}
	m.mu.Unlock()

	for _, e := range live {
		if !fn(e.k, e.v) {
			return
		}
	}
}

// Len returns the number of entries whose key is still reachable.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.items {
		if k.Value() != nil {
			n++
		}
	}
	return n
}

func (m *Map[K, V]) evict(key weak.Pointer[K]) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}
