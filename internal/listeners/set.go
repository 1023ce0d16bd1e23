// Package listeners keeps the observers registered by the UI layer.
// Functions are not comparable, hence each registration is keyed by a
// sequence number and removed through the returned cancel function.
package listeners

import (
	"sort"
	"sync"
)

type Set[T any] struct {
	seq int
	fns map[int]func(T)
	*sync.RWMutex
}

func New[T any]() *Set[T] {
	return &Set[T]{fns: map[int]func(T){}, RWMutex: &sync.RWMutex{}}
}

func (s *Set[T]) Add(fn func(T)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	s.Lock()
	s.seq++
	id := s.seq
	s.fns[id] = fn
	s.Unlock()

	return func() {
		s.Lock()
		defer s.Unlock()
		delete(s.fns, id)
	}
}

// Notify calls every listener in registration order outside the lock so
// that listeners may register or cancel others
func (s *Set[T]) Notify(v T) {
	s.RLock()
	ids := make([]int, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.fns[id])
	}
	s.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (s *Set[T]) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.fns)
}
