package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"exchange-rate-watcher/pkg/logger"
)

// Subscription identifies one registered callback.
type Subscription struct {
	id     uuid.UUID
	once   sync.Once
	cancel func(uuid.UUID)
}

func (s *Subscription) ID() string {
	return s.id.String()
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel(s.id)
	})
}

type subscriber[T any] struct {
	id uuid.UUID
	fn func(T)
}

// stream delivers values to its subscribers synchronously, in subscription
// order. A panicking subscriber is logged and skipped.
type stream[T any] struct {
	name        string
	mu          sync.RWMutex
	subscribers []subscriber[T]
	log         *logger.Logger
}

func newStream[T any](name string, log *logger.Logger) *stream[T] {
	return &stream[T]{name: name, log: log}
}

func (s *stream[T]) subscribe(fn func(T)) *Subscription {
	id := uuid.New()

	s.mu.Lock()
	s.subscribers = append(s.subscribers, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return &Subscription{id: id, cancel: s.unsubscribe}
}

func (s *stream[T]) unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub.id == id {
			s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
			return
		}
	}
}

func (s *stream[T]) publish(value T) {
	s.mu.RLock()
	subscribers := make([]subscriber[T], len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()

	for _, sub := range subscribers {
		var catcher panics.Catcher
		catcher.Try(func() { sub.fn(value) })
		if recovered := catcher.Recovered(); recovered != nil {
			s.log.Error("Subscriber panicked",
				"stream", s.name,
				"subscription", sub.id.String(),
				"error", recovered.AsError(),
			)
		}
	}
}

func (s *stream[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
