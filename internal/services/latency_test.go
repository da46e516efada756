package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordRoundTrip(t *testing.T, tr *LatencyTracker, base time.Time, latency time.Duration) {
	t.Helper()
	tr.MarkSent(base)
	got, err := tr.Record(base.Add(latency))
	require.NoError(t, err)
	require.Equal(t, latency, got)
}

func TestLatencyTrackerAverageBeforeAnySample(t *testing.T) {
	tr := NewLatencyTracker(0)

	_, err := tr.Average()
	assert.ErrorIs(t, err, ErrEmptyHistory)
	_, err = tr.Last()
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestLatencyTrackerRecordWithoutSend(t *testing.T) {
	tr := NewLatencyTracker(0)

	_, err := tr.Record(time.Now())
	assert.ErrorIs(t, err, ErrNoSend)
	assert.Equal(t, 0, tr.Len())
}

func TestLatencyTrackerAverageIsMeanOfHistory(t *testing.T) {
	base := time.Unix(1000, 0)
	latencies := []time.Duration{30 * time.Millisecond, 10 * time.Millisecond, 80 * time.Millisecond, 40 * time.Millisecond}

	forward := NewLatencyTracker(0)
	reverse := NewLatencyTracker(0)
	for i := range latencies {
		recordRoundTrip(t, forward, base, latencies[i])
		recordRoundTrip(t, reverse, base, latencies[len(latencies)-1-i])
	}

	avgF, err := forward.Average()
	require.NoError(t, err)
	avgR, err := reverse.Average()
	require.NoError(t, err)

	assert.Equal(t, 40*time.Millisecond, avgF)
	assert.Equal(t, avgF, avgR, "average must not depend on order")
	assert.Equal(t, latencies, forward.Samples())

	last, err := forward.Last()
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, last)
}

func TestLatencyTrackerUsesMostRecentSend(t *testing.T) {
	tr := NewLatencyTracker(0)
	base := time.Unix(1000, 0)

	tr.MarkSent(base)
	tr.MarkSent(base.Add(70 * time.Millisecond))
	got, err := tr.Record(base.Add(100 * time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Millisecond, got)
}

func TestLatencyTrackerBoundedHistory(t *testing.T) {
	tr := NewLatencyTracker(3)
	base := time.Unix(1000, 0)

	for _, ms := range []int{10, 20, 30, 40, 50} {
		recordRoundTrip(t, tr, base, time.Duration(ms)*time.Millisecond)
	}

	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, []time.Duration{30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}, tr.Samples())
	avg, err := tr.Average()
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, avg)
}

func TestMilliseconds(t *testing.T) {
	assert.InDelta(t, 12.5, Milliseconds(12500*time.Microsecond), 1e-9)
}
