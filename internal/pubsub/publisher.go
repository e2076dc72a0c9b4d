package pubsub

import (
	"errors"
	"sync"

	"github.com/mircov/lessongrab/generic"
	"github.com/mircov/lessongrab/internal/sync_"
)

const (
	DefaultPublisherBufSize  = 1
	DefaultSubscriberBufSize = 1
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher broadcasts every sent message to all current subscribers. A
// subscriber that is closed (or stops receiving) is dropped rather than
// blocking the others: delivery is best-effort by design of the status
// reporting contract.
type Publisher[T any] interface {
	SenderCloser[T]
	AddSubscriber(SenderCloser[T]) error
	Subscribe() (ReceiverCloser[T], error)
}

type publisher[T any] struct {
	mu          sync.Mutex
	ch          Channel[T]
	running     sync.WaitGroup // Goroutines in progress
	pending     sync.WaitGroup // Messages not yet sent to all subscribers
	subscribers *sync_.Mutexed[generic.PolymorphicSet[SenderCloser[T]]]
	closed      bool
}

func NewPublisher[T any]() Publisher[T] {
	p := &publisher[T]{
		ch:          NewChannel[T](DefaultPublisherBufSize),
		subscribers: sync_.NewMutexed(generic.NewPolymorphicSet[SenderCloser[T]]()),
	}
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		for v := range p.ch.Receive() {
			// Take a snapshot of the subscriber set, to avoid holding a lock
			// that prevents adding new subscribers mid-broadcast.
			var subscriberSlice []SenderCloser[T]
			_ = p.subscribers.Locked(func(subscribers generic.PolymorphicSet[SenderCloser[T]]) error {
				subscriberSlice = subscribers.ToSlice()
				return nil
			})
			for _, s := range subscriberSlice {
				if ok := s.Send(v); !ok {
					p.unsubscribe(s)
				}
			}
			p.pending.Done()
		}
	}()
	return p
}

// Send will publish the value to all subscribers (non-blocking).
func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if ok := p.ch.Send(msg); !ok {
		// Message was not sent, so don't wait for it
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	s := NewChannel[T](DefaultSubscriberBufSize)
	if err := p.AddSubscriber(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T]) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(subscribers generic.PolymorphicSet[SenderCloser[T]]) error {
		subscribers.Add(s)
		return nil
	})
}

func (p *publisher[T]) unsubscribe(s SenderCloser[T]) {
	_ = p.subscribers.Locked(func(subscribers generic.PolymorphicSet[SenderCloser[T]]) error {
		subscribers.Remove(s)
		return nil
	})
}

// Close idempotently shuts down the publisher, closing all subscribers too.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	// Close the send channel, and wait for the broadcast loop to flush
	p.ch.Close()
	p.pending.Wait()
	p.running.Wait()
	var subscriberSlice []SenderCloser[T]
	_ = p.subscribers.Locked(func(subscribers generic.PolymorphicSet[SenderCloser[T]]) error {
		subscriberSlice = subscribers.ToSlice()
		subscribers.Clear()
		return nil
	})
	for _, s := range subscriberSlice {
		s.Close()
	}
	p.closed = true
}

func (p *publisher[T]) Closed() <-chan struct{} {
	return p.ch.Closed()
}
