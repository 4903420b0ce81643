package sync_

import (
	"sync"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func TestMutexed(t *testing.T) {
	assert := assert_.New(t)
	m := NewMutexed(10)
	assert.Equal(10, m.Get())
	m.Set(20)
	assert.Equal(20, m.Get())
	assert.Equal(20, m.Swap(30))
	assert.Equal(30, m.Get())
	_ = m.Locked(func(v int) error {
		assert.Equal(30, v)
		return nil
	})
}

func TestEventSync(t *testing.T) {
	assert := assert_.New(t)
	e := NewEvent()
	assert.False(e.IsSet())
	select {
	case <-e.Wait():
		assert.Fail("<-e.Wait() should be blocking")
	default:
	}
	assert.True(e.Set())
	assert.True(e.IsSet())
	select {
	case <-e.Wait():
	default:
		assert.Fail("<-e.Wait() should not block")
	}
	assert.False(e.Set())
	assert.True(e.Clear())
	assert.False(e.IsSet())
	assert.False(e.Clear())
}

func TestEventAsync(t *testing.T) {
	assert := assert_.New(t)
	e := NewEvent()
	wg := sync.WaitGroup{}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-e.Wait()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		assert.Fail("event should be blocking all goroutines")
	case <-time.After(100 * time.Millisecond):
	}

	e.Set()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		assert.Fail("event should no longer be blocking all goroutines")
	}
}
