package sync_

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventSetClear(t *testing.T) {
	assert := assert.New(t)
	var e Event
	assert.False(e.IsSet())
	assert.True(e.Set())
	assert.False(e.Set())
	assert.True(e.IsSet())
	select {
	case <-e.Wait():
	default:
		t.Fatal("Wait() channel of a set Event should be closed")
	}
	assert.True(e.Clear())
	assert.False(e.Clear())
	assert.False(e.IsSet())
}

func TestEventWake(t *testing.T) {
	var e Event
	done := make(chan struct{})
	go func() {
		<-e.Wait()
		close(done)
	}()
	e.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Set()")
	}
}

func TestMutexedSwap(t *testing.T) {
	assert := assert.New(t)
	m := NewMutexed(map[string]int{"a": 1})
	old := m.Swap(nil)
	assert.Equal(1, old["a"])
	assert.Nil(m.Get())
}
