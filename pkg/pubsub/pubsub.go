// Package pubsub fans values out to an ordered set of callback subscribers.
package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type subscription[T any] struct {
	id     string
	fn     func(T)
	active atomic.Bool
}

type PubSub[T any] struct {
	mu   sync.Mutex
	subs []*subscription[T]
}

func NewPubSub[T any]() *PubSub[T] {
	return &PubSub[T]{}
}

// Subscribe registers fn and returns its id and a cancel func. Cancel is
// idempotent; once it returns fn is not invoked by later publications.
func (ps *PubSub[T]) Subscribe(fn func(T)) (string, func()) {
	s := &subscription[T]{id: uuid.NewString(), fn: fn}
	s.active.Store(true)

	ps.mu.Lock()
	ps.subs = append(ps.subs, s)
	ps.mu.Unlock()

	return s.id, func() { ps.unsubscribe(s) }
}

func (ps *PubSub[T]) unsubscribe(s *subscription[T]) {
	if !s.active.Swap(false) {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i, sub := range ps.subs {
		if sub == s {
			ps.subs = append(ps.subs[:i:i], ps.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every subscriber in subscription order. Subscribers may
// subscribe or cancel from inside their callback.
func (ps *PubSub[T]) Publish(data T) {
	ps.mu.Lock()
	subs := append([]*subscription[T](nil), ps.subs...)
	ps.mu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.fn(data)
		}
	}
}

func (ps *PubSub[T]) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.subs)
}
