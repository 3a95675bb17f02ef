package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalOnce(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.IsSignaled())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Signal()
		}()
	}
	wg.Wait()

	assert.True(t, s.IsSignaled())
	assert.True(t, s.Wait(0))
}

func TestSignalWaitTimeout(t *testing.T) {
	s := NewSignal()

	start := time.Now()
	ok := s.Wait(20 * time.Millisecond)

	assert.False(t, ok)
	assert.True(t, time.Since(start) >= 20*time.Millisecond)
}

func TestSignalWakesWaiter(t *testing.T) {
	s := NewSignal()
	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Signal()
	}()

	assert.True(t, s.Wait(time.Second))
}

func TestSignalWaitContext(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.False(t, s.WaitContext(ctx))

	s.Signal()
	assert.True(t, s.WaitContext(context.Background()))
	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel not closed")
	}
}
