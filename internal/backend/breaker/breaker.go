// Package breaker stops calling a failing backend for a while.
//
// The Breaker follows the usual three states:
//
//	Closed --(error rate >= ErrorPct)--> Open --(OpenDuration elapsed)--> HalfOpen
//	  ^                                                                      |
//	  +-------------------(all probes succeed)-------------------------------+
//	                       (any probe fails) ----------------------------> Open
//
// The error rate is computed over a sliding window of WindowDuration, and
// only once the window holds at least MinRequests outcomes.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Config struct {
	ErrorPct       float64       // error percentage that trips the breaker (0-100)
	WindowDuration time.Duration // sliding window for the error rate
	OpenDuration   time.Duration // time spent open before probing
	HalfOpenProbes int           // probes allowed while half open
	MinRequests    int           // outcomes needed in the window before tripping
}

// DefaultConfig ... Values used when the command line leaves them unset
func DefaultConfig() Config {
	return Config{
		ErrorPct:       50,
		WindowDuration: 10 * time.Second,
		OpenDuration:   5 * time.Second,
		HalfOpenProbes: 1,
		MinRequests:    10,
	}
}

// maxWindowEntries caps the window slices under heavy error load
const maxWindowEntries = 10000

type Breaker struct {
	mu             sync.Mutex
	cfg            Config
	now            func() time.Time
	onChange       func(State)
	state          State
	successes      []time.Time
	failures       []time.Time
	openedAt       time.Time
	halfOpenProbes int
	halfOpenOK     int
}

type Option func(*Breaker)

// Clock ... Time source, tests use a fake one
func Clock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// OnStateChange ... Called with the new state, under the breaker lock
func OnStateChange(fn func(State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

func New(cfg Config, opts ...Option) *Breaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	b := &Breaker{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onChange != nil {
		b.onChange(s)
	}
}

// halfOpenIfDue moves an open breaker to half open once OpenDuration passed. Must be called under lock
func (b *Breaker) halfOpenIfDue(now time.Time) {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.OpenDuration {
		b.halfOpenProbes = 0
		b.halfOpenOK = 0
		b.setState(StateHalfOpen)
	}
}

// Allow ... Reports whether a call may go through
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenIfDue(b.now())

	switch b.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.halfOpenProbes < b.cfg.HalfOpenProbes {
			b.halfOpenProbes++
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		b.successes = append(b.successes, now)
		b.trimWindow(now)
	case StateHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenProbes {
			b.successes = b.successes[:0]
			b.failures = b.failures[:0]
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		b.failures = append(b.failures, now)
		b.trimWindow(now)
		b.checkThreshold(now)
	case StateHalfOpen:
		b.openedAt = now
		b.setState(StateOpen)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenIfDue(b.now())
	return b.state
}

func (b *Breaker) trimWindow(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowDuration)
	b.successes = trimBefore(b.successes, cutoff)
	b.failures = trimBefore(b.failures, cutoff)

	if len(b.successes) > maxWindowEntries {
		b.successes = b.successes[len(b.successes)-maxWindowEntries:]
	}
	if len(b.failures) > maxWindowEntries {
		b.failures = b.failures[len(b.failures)-maxWindowEntries:]
	}
}

func (b *Breaker) checkThreshold(now time.Time) {
	total := len(b.successes) + len(b.failures)
	if total == 0 || total < b.cfg.MinRequests {
		return
	}
	if float64(len(b.failures))/float64(total)*100 >= b.cfg.ErrorPct {
		b.openedAt = now
		b.setState(StateOpen)
	}
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	copy(times, times[i:])
	return times[:len(times)-i]
}
