package interval

import (
	"sync"
	"time"
)

// Interval ... Runs a callback on a fixed period until cleared
type Interval struct {
	stop chan struct{}
	done chan struct{}
	once *sync.Once
}

// SetInterval ... Calls fn every delay on a dedicated goroutine
func SetInterval(fn func(t time.Time), delay time.Duration) Interval {
	c := Interval{
		stop: make(chan struct{}),
		done: make(chan struct{}),
		once: &sync.Once{},
	}
	ticker := time.NewTicker(delay)

	go func() {
		defer close(c.done)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case t := <-ticker.C:
				fn(t)
			}
		}
	}()

	return c
}

// Clear ... Stops the ticker and waits for a running callback to return.
// Safe to call more than once and on the zero value
func (c Interval) Clear() {
	if c.once == nil {
		return
	}
	c.once.Do(func() {
		close(c.stop)
		<-c.done
	})
}
