package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveOne[T any](t *testing.T, r ReceiverCloser[T]) T {
	t.Helper()
	select {
	case v := <-r.Receive():
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		panic("unreachable")
	}
}

func TestPublisherBroadcast(t *testing.T) {
	assert := assert.New(t)
	p := NewPublisher[int]()
	defer p.Close()
	a, err := p.Subscribe()
	require.NoError(t, err)
	b, err := p.Subscribe()
	require.NoError(t, err)
	assert.True(p.Send(42))
	assert.Equal(42, receiveOne[int](t, a))
	assert.Equal(42, receiveOne[int](t, b))
}

func TestPublisherClosedSubscriberDropped(t *testing.T) {
	assert := assert.New(t)
	p := NewPublisher[int]()
	defer p.Close()
	a, err := p.Subscribe()
	require.NoError(t, err)
	b, err := p.Subscribe()
	require.NoError(t, err)
	a.Close()
	assert.True(p.Send(1))
	assert.Equal(1, receiveOne[int](t, b))
	assert.True(p.Send(2))
	assert.Equal(2, receiveOne[int](t, b))
}

func TestPublisherCloseClosesSubscribers(t *testing.T) {
	p := NewPublisher[int]()
	a, err := p.Subscribe()
	require.NoError(t, err)
	p.Close()
	select {
	case _, ok := <-a.Receive():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel was not closed")
	}
	assert.False(t, p.Send(1))
}

func TestFilteredSender(t *testing.T) {
	assert := assert.New(t)
	p := NewPublisher[int]()
	defer p.Close()
	ch := NewChannel[int](4)
	require.NoError(t, p.AddSubscriber(NewFilteredSender[int](ch, func(v int) bool { return v%2 == 0 })))
	assert.True(p.Send(1))
	assert.True(p.Send(2))
	assert.Equal(2, receiveOne[int](t, ch))
}
