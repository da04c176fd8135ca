package util

import "context"

// Semaphore bounds the number of concurrent operations
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{slots: make(chan struct{}, n)}
}

// Acquire takes a slot, blocking until one is free or ctx is cancelled
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire
func (s *Semaphore) Release() {
	<-s.slots
}

// Cap returns the semaphore capacity
func (s *Semaphore) Cap() int {
	return cap(s.slots)
}
