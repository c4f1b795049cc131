// Package session guards host sessions so that closing a session waits for
// every request still running against it.
package session

import (
	"context"
	"sync"
)

// Latch is a countdown seeded at one. Each in-flight request adds one and
// signals when done; closing signals the seed and waits for zero.
type Latch struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

// NewLatch returns a latch seeded at one
func NewLatch() *Latch {
	return &Latch{count: 1, done: make(chan struct{})}
}

// TryAdd registers an in-flight operation. It fails once the latch reached zero.
func (l *Latch) TryAdd() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return false
	}
	l.count++
	return true
}

// Signal completes one operation
func (l *Latch) Signal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 {
		close(l.done)
	}
}

// Count returns the current count
func (l *Latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Wait blocks until the count reaches zero or ctx is done
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
