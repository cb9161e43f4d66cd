package sink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPutNeverBlocks(t *testing.T) {
	s := New[int]("test", 10000, func(int) error { return nil }, zap.NewNop(), nil)

	// No consumer running: 20k puts into a 10k queue must complete without
	// blocking, dropping the overflow.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20000; i++ {
			s.Put(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Put blocked on a full queue")
	}
	assert.Equal(t, uint64(10000), s.Dropped())
}

func TestConsumerProcessesItems(t *testing.T) {
	var mu sync.Mutex
	var got []int
	s := New[int]("test", 100, func(v int) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		return nil
	}, zap.NewNop(), nil)

	require.NoError(t, s.Start())
	for i := 0; i < 50; i++ {
		assert.True(t, s.Put(i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 50
	}, 2*time.Second, 10*time.Millisecond)

	// FIFO order from a single consumer.
	mu.Lock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	mu.Unlock()

	require.NoError(t, s.Stop(time.Second))
}

func TestHandlerErrorDoesNotKillConsumer(t *testing.T) {
	var mu sync.Mutex
	var handled int
	s := New[int]("test", 100, func(v int) error {
		mu.Lock()
		defer mu.Unlock()
		handled++
		if v%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}, zap.NewNop(), nil)

	require.NoError(t, s.Start())
	for i := 0; i < 10; i++ {
		s.Put(i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 10
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(5), s.WriteErrors())
	require.NoError(t, s.Stop(time.Second))
}

func TestLifecycleErrors(t *testing.T) {
	s := New[int]("test", 10, func(int) error { return nil }, zap.NewNop(), nil)

	assert.ErrorIs(t, s.Stop(time.Second), ErrNotStarted)
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
	require.NoError(t, s.Stop(time.Second))

	// Second stop is a no-op.
	require.NoError(t, s.Stop(time.Second))

	// Puts after stop are dropped, not sent.
	assert.False(t, s.Put(1))
	assert.Equal(t, uint64(1), s.Dropped())
}

func TestOnDropHook(t *testing.T) {
	var drops int
	s := New[int]("test", 1, func(int) error { return nil }, zap.NewNop(), func() { drops++ })

	s.Put(1) // fills the queue (no consumer)
	s.Put(2) // dropped
	s.Put(3) // dropped

	assert.Equal(t, 2, drops)
}
