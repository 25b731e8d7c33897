package player

import "sync"

// ListenerSet is a registry of clock listeners shared by the Clock
// implementations. The zero value is ready to use.
type ListenerSet struct {
	mu   sync.RWMutex
	next uint64
	m    map[uint64]Listener
}

func (s *ListenerSet) Add(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[uint64]Listener)
	}
	id := s.next
	s.next++
	s.m[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.m, id)
			s.mu.Unlock()
		})
	}
}

func (s *ListenerSet) Emit(ev Event) {
	s.mu.RLock()
	ls := make([]Listener, 0, len(s.m))
	for _, l := range s.m {
		ls = append(ls, l)
	}
	s.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}

func (s *ListenerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
