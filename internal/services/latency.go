package services

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrEmptyHistory is returned by Average before the first round trip.
	ErrEmptyHistory = errors.New("latency history is empty")
	// ErrNoSend is returned by Record when no frame has been sent yet.
	ErrNoSend = errors.New("no frame has been sent")
)

// LatencyTracker measures round trips as the time between the most recent
// send and a receive. There is no per-frame correlation, so a reply is always
// attributed to the last frame sent.
type LatencyTracker struct {
	mu       sync.Mutex
	lastSend time.Time
	samples  []time.Duration
	limit    int
	next     int
	total    time.Duration
	last     time.Duration
}

// NewLatencyTracker keeps every sample when limit is 0, otherwise only the
// most recent limit samples.
func NewLatencyTracker(limit int) *LatencyTracker {
	if limit < 0 {
		limit = 0
	}
	return &LatencyTracker{limit: limit}
}

func (t *LatencyTracker) MarkSent(at time.Time) {
	t.mu.Lock()
	t.lastSend = at
	t.mu.Unlock()
}

// Record appends receivedAt minus the last send instant to the history.
func (t *LatencyTracker) Record(receivedAt time.Time) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastSend.IsZero() {
		return 0, ErrNoSend
	}
	sample := receivedAt.Sub(t.lastSend)
	if sample < 0 {
		sample = 0
	}

	if t.limit > 0 && len(t.samples) == t.limit {
		t.total -= t.samples[t.next]
		t.samples[t.next] = sample
		t.next = (t.next + 1) % t.limit
	} else {
		t.samples = append(t.samples, sample)
	}
	t.total += sample
	t.last = sample

	return sample, nil
}

// Average is the arithmetic mean of the retained history.
func (t *LatencyTracker) Average() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return 0, ErrEmptyHistory
	}
	return t.total / time.Duration(len(t.samples)), nil
}

func (t *LatencyTracker) Last() (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return 0, ErrEmptyHistory
	}
	return t.last, nil
}

func (t *LatencyTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Samples returns the retained history oldest first.
func (t *LatencyTracker) Samples() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]time.Duration, 0, len(t.samples))
	if t.limit > 0 && len(t.samples) == t.limit {
		out = append(out, t.samples[t.next:]...)
		out = append(out, t.samples[:t.next]...)
		return out
	}
	return append(out, t.samples...)
}

// Milliseconds converts a duration to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
