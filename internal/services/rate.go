package services

import (
	"sync/atomic"
	"time"
)

// FrameRate is a capture rate in frames per second.
type FrameRate int

const (
	RateLow    FrameRate = 15
	RateMedium FrameRate = 20
	RateFull   FrameRate = 30

	highLatencyMs   = 100.0
	mediumLatencyMs = 50.0
)

// Period is the time between two capture ticks at this rate.
func (r FrameRate) Period() time.Duration {
	if r <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(r)
}

// Decide maps an average latency in milliseconds to a capture rate.
// Boundaries belong to the faster band: exactly 100 is medium, exactly 50 is full.
func Decide(avgLatencyMs float64) FrameRate {
	switch {
	case avgLatencyMs > highLatencyMs:
		return RateLow
	case avgLatencyMs > mediumLatencyMs:
		return RateMedium
	default:
		return RateFull
	}
}

// RateController holds the current target rate. Recompute is called after
// every round trip and Current is read by the scheduler on every tick.
type RateController struct {
	current atomic.Int64
}

func NewRateController() *RateController {
	c := &RateController{}
	c.current.Store(int64(RateFull))
	return c
}

func (c *RateController) Recompute(avg time.Duration) FrameRate {
	r := Decide(Milliseconds(avg))
	c.current.Store(int64(r))
	return r
}

func (c *RateController) Current() FrameRate {
	return FrameRate(c.current.Load())
}
