// Package event implements the generic multi-subscriber notification
// primitive used by every "emits X event" operation in the ledger, block
// processor, confirming set, and scheduler.
package event

import "sync"

// Observer is a callback invoked with the arguments of a notification.
type Observer[T any] func(T)

// Set is a thread-safe collection of observers. Notify copies the observer
// list under lock and invokes each outside the lock so that a slow or
// re-entrant observer never blocks registration, and so that a panicking
// observer cannot corrupt the set for the remaining observers.
type Set[T any] struct {
	mu        sync.Mutex
	observers []Observer[T]
}

// Add registers an observer. Safe to call concurrently with Notify.
func (s *Set[T]) Add(obs Observer[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// Notify delivers args to every currently registered observer. A panic in
// one observer is recovered so the remaining observers still run.
func (s *Set[T]) Notify(args T) {
	s.mu.Lock()
	observers := make([]Observer[T], len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, obs := range observers {
		s.dispatch(obs, args)
	}
}

func (s *Set[T]) dispatch(obs Observer[T], args T) {
	defer func() { _ = recover() }()
	obs(args)
}

// Empty reports whether the set currently has no observers.
func (s *Set[T]) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers) == 0
}

// Len returns the number of registered observers.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
