package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

// Publisher holds a latest value and fans published values out to observers.
// Each observer is served by its own delivery goroutine draining a private
// ordered queue, so a slow observer never delays the producer or another
// observer, and every observer sees values in the order they were published.
//
// An observer that subscribes after N publishes receives the current value
// as its first delivery, before any newer one.
type Publisher[T any] struct {
	mu         sync.Mutex
	subs       map[string]*subscription[T]
	current    T
	hasCurrent bool
	closed     bool
}

type subscription[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
}

// NewPublisher creates a Publisher with no current value and no observers.
func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{
		subs: make(map[string]*subscription[T]),
	}
}

// Publish stores v as the current value and enqueues it to every observer.
// Enqueueing happens under the publisher lock so all observers see the same
// global order; delivery itself is asynchronous.
func (p *Publisher[T]) Publish(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.current = v
	p.hasCurrent = true

	for _, sub := range p.subs {
		sub.enqueue(v)
	}
}

// Latest returns the most recently published value, if any.
func (p *Publisher[T]) Latest() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.hasCurrent
}

// Subscribe registers fn as an observer and returns a cancel function.
// fn is invoked on a dedicated delivery goroutine, one value at a time, in
// publish order, starting with the current value when one exists. After
// cancel returns no further values are queued; values already queued are
// still delivered.
func (p *Publisher[T]) Subscribe(fn func(T)) (cancel func()) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return func() {}
	}

	sub := &subscription[T]{}
	sub.cond = sync.NewCond(&sub.mu)
	if p.hasCurrent {
		sub.queue = append(sub.queue, p.current)
	}

	id := uuid.NewString()
	p.subs[id] = sub
	p.mu.Unlock()

	go sub.deliver(fn)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
		sub.close()
	}
}

// Close cancels all subscriptions. Queued values are still delivered before
// each delivery goroutine exits.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := make([]*subscription[T], 0, len(p.subs))
	for _, sub := range p.subs {
		subs = append(subs, sub)
	}
	p.subs = make(map[string]*subscription[T])
	p.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (s *subscription[T]) enqueue(v T) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, v)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

// deliver drains the queue in order, invoking fn outside the lock. It exits
// once the subscription is closed and the queue is empty.
func (s *subscription[T]) deliver(fn func(T)) {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn(v)
	}
}
