package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		latency float64
		want    FrameRate
	}{
		{150, RateLow},
		{100.001, RateLow},
		{100, RateMedium},
		{75, RateMedium},
		{50.001, RateMedium},
		{50, RateFull},
		{10, RateFull},
		{0, RateFull},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.latency), "Decide(%v)", tt.latency)
	}
}

func TestDecideIsNonIncreasing(t *testing.T) {
	prev := Decide(0)
	for ms := 0.0; ms <= 300; ms += 0.5 {
		got := Decide(ms)
		require.LessOrEqual(t, got, prev, "rate increased at %v ms", ms)
		prev = got
	}
}

func TestFrameRatePeriod(t *testing.T) {
	assert.Equal(t, time.Second/30, RateFull.Period())
	assert.Equal(t, 50*time.Millisecond, RateMedium.Period())
	assert.Equal(t, time.Second, FrameRate(0).Period())
}

func TestRateControllerStartsAtFullRate(t *testing.T) {
	assert.Equal(t, RateFull, NewRateController().Current())
}

func TestRateControllerFollowsAverageNotInstantaneous(t *testing.T) {
	tr := NewLatencyTracker(0)
	rc := NewRateController()
	base := time.Unix(1000, 0)

	latencies := []int{120, 130, 110, 90, 40}
	want := []FrameRate{RateLow, RateLow, RateLow, RateLow, RateMedium}

	for i, ms := range latencies {
		tr.MarkSent(base)
		_, err := tr.Record(base.Add(time.Duration(ms) * time.Millisecond))
		require.NoError(t, err)

		avg, err := tr.Average()
		require.NoError(t, err)
		got := rc.Recompute(avg)

		assert.Equal(t, want[i], got, "round trip %d (latency %d ms)", i+1, ms)
		assert.Equal(t, got, rc.Current())
	}
}
