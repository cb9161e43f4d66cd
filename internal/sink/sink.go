// Package sink provides bounded, non-blocking, single-consumer output
// channels. Producers never wait: when the queue is full the item is dropped
// and counted, because the instrumented session's responsiveness matters more
// than log completeness.
package sink

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultCapacity bounds each sink's queue.
const DefaultCapacity = 10000

var (
	ErrAlreadyStarted = errors.New("sink already started")
	ErrNotStarted     = errors.New("sink not started")
	ErrStopTimeout    = errors.New("sink consumer did not stop within timeout")
)

// Sink is a fixed-capacity queue drained by exactly one background goroutine.
// A failed handle call is counted and skipped; it never terminates the
// consumer or reaches the producer.
type Sink[T any] struct {
	name   string
	ch     chan T
	quit   chan struct{}
	done   chan struct{}
	handle func(T) error
	log    *zap.Logger
	onDrop func()

	dropped     atomic.Uint64
	writeErrors atomic.Uint64

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds a sink that feeds each item to handle on the consumer goroutine.
// onDrop may be nil; when set it is called once per dropped item.
func New[T any](name string, capacity int, handle func(T) error, log *zap.Logger, onDrop func()) *Sink[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink[T]{
		name:   name,
		ch:     make(chan T, capacity),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		handle: handle,
		log:    log,
		onDrop: onDrop,
	}
}

// Start spawns the single consumer goroutine.
func (s *Sink[T]) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	go s.run()
	return nil
}

// Put enqueues without ever blocking the caller. Returns false when the item
// was dropped (queue full or sink stopped).
func (s *Sink[T]) Put(item T) bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		s.drop()
		return false
	}

	select {
	case s.ch <- item:
		return true
	default:
		s.drop()
		return false
	}
}

func (s *Sink[T]) drop() {
	s.dropped.Add(1)
	if s.onDrop != nil {
		s.onDrop()
	}
}

// Stop signals shutdown and joins the consumer. Items still queued when the
// signal lands are discarded, mirroring the overflow policy.
func (s *Sink[T]) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.quit)

	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// Dropped reports how many items were discarded at the queue boundary.
func (s *Sink[T]) Dropped() uint64 { return s.dropped.Load() }

// WriteErrors reports how many items the handler failed on.
func (s *Sink[T]) WriteErrors() uint64 { return s.writeErrors.Load() }

func (s *Sink[T]) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case item := <-s.ch:
			if err := s.handle(item); err != nil {
				s.writeErrors.Add(1)
				if s.log != nil {
					s.log.Debug("sink write failed",
						zap.String("sink", s.name),
						zap.Error(err))
				}
			}
		}
	}
}
