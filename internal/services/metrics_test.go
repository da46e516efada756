package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementFramesSent()
			m.IncrementAnnotations()
		}()
	}
	wg.Wait()
	m.IncrementFramesRejected()
	m.IncrementReconnects()
	m.IncrementReconnects()

	assert.Equal(t, int64(50), m.GetFramesSent())
	assert.Equal(t, int64(50), m.GetAnnotations())
	assert.Equal(t, int64(1), m.GetFramesRejected())
	assert.Equal(t, int64(2), m.GetReconnects())

	snap := m.Snapshot()
	assert.Equal(t, int64(50), snap["frames_sent"])
	assert.NotZero(t, snap["last_frame_ms"])
	assert.Len(t, m.LogAttrs(), 14)
}
