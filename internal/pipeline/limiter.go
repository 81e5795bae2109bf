package pipeline

// limiter.go bounds how many ingest runs execute at once.
//
// Slots are shared by every feed; Status breaks the holders down by feed so
// a single noisy feed is visible on /healthz. A run that cannot get a slot
// within maxWait fails with ErrTooManyRuns. Every wait outcome is reported
// through internal/metrics.

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/JonMunkholm/tickfeed/internal/metrics"
)

// ErrTooManyRuns is returned when all run slots are occupied and the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManyRuns = errors.New("too many concurrent ingest runs, please try again later")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// Limiter bounds the number of concurrent stream runs across all feeds.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration
	metrics *metrics.Metrics

	mu      sync.Mutex
	active  int
	waiting int
	byFeed  map[string]int
	idle    chan struct{} // closed while no slot is held
}

// NewLimiter creates a limiter that allows at most maxConcurrent runs.
// m may be nil.
func NewLimiter(maxConcurrent int, maxWait time.Duration, m *metrics.Metrics) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		metrics: m,
		byFeed:  make(map[string]int),
		idle:    idle,
	}
}

// Slot is a held run slot. Release is safe to call more than once.
type Slot struct {
	l    *Limiter
	feed string
	once sync.Once
}

// Release returns the slot to the limiter.
func (s *Slot) Release() {
	s.once.Do(func() { s.l.release(s.feed) })
}

// Acquire waits up to the limiter's max wait for a slot to run feed.
func (l *Limiter) Acquire(ctx context.Context, feed string) (*Slot, error) {
	start := time.Now()

	select {
	case l.slots <- struct{}{}:
		return l.grant(feed, start), nil
	default:
	}

	l.mu.Lock()
	l.waiting++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.waiting--
		l.mu.Unlock()
	}()

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return l.grant(feed, start), nil
	case <-ctx.Done():
		l.metrics.ObserveLimiterWait(feed, time.Since(start), metrics.WaitCancelled)
		return nil, ctx.Err()
	case <-timer.C:
		l.metrics.ObserveLimiterWait(feed, time.Since(start), metrics.WaitTimeout)
		return nil, fmt.Errorf("%w (feed %s waited %s)", ErrTooManyRuns, feed, l.maxWait)
	}
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire(feed string) (*Slot, bool) {
	select {
	case l.slots <- struct{}{}:
		return l.grant(feed, time.Now()), true
	default:
		return nil, false
	}
}

func (l *Limiter) grant(feed string, start time.Time) *Slot {
	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.byFeed[feed]++
	n := l.byFeed[feed]
	l.mu.Unlock()

	l.metrics.ObserveLimiterWait(feed, time.Since(start), metrics.WaitAcquired)
	l.metrics.SetActiveRuns(feed, n)
	return &Slot{l: l, feed: feed}
}

func (l *Limiter) release(feed string) {
	l.mu.Lock()
	l.active--
	l.byFeed[feed]--
	n := l.byFeed[feed]
	if n == 0 {
		delete(l.byFeed, feed)
	}
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
	l.metrics.SetActiveRuns(feed, n)
}

// WaitForDrain blocks until no slot is held or ctx is done.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LimiterStatus is a snapshot of the limiter's state.
type LimiterStatus struct {
	Active        int            `json:"active"`
	Waiting       int            `json:"waiting"`
	MaxConcurrent int            `json:"max_concurrent"`
	Feeds         map[string]int `json:"feeds"` // active runs by feed
}

// Status returns the current limiter state for monitoring.
func (l *Limiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStatus{
		Active:        l.active,
		Waiting:       l.waiting,
		MaxConcurrent: cap(l.slots),
		Feeds:         maps.Clone(l.byFeed),
	}
}
