// Package throttle holds the fixed pauses amoCRM calls are spaced with.
package throttle

import (
	"context"
	"sync"
	"time"
)

// Pacer блокирует вызывающего на d. Продакшен спит, тесты подставляют NoopPacer.
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// SleepPacer sleeps for d or until ctx is done.
type SleepPacer struct{}

func (SleepPacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoopPacer returns immediately.
type NoopPacer struct{}

func (NoopPacer) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Recorder не ждёт, а запоминает запрошенные паузы.
type Recorder struct {
	mu     sync.Mutex
	Delays []time.Duration
}

func (r *Recorder) Wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.Delays = append(r.Delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Count returns how many waits of exactly d were requested.
func (r *Recorder) Count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.Delays {
		if x == d {
			n++
		}
	}
	return n
}
