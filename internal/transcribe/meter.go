package transcribe

import (
	"math"
	"sync"
)

// meterFloorDB is the level mapped to 0 on the meter scale.
const meterFloorDB = -60.0

// Meter tracks the loudness of the most recent frame on a 0-100 scale,
// where 0 is -60 dBFS or quieter and 100 is full scale.
type Meter struct {
	mu     sync.Mutex
	level  float64
	closed bool
}

// Observe updates the level from one frame. It is a no-op once closed.
func (m *Meter) Observe(frame []float32) {
	lvl := Loudness(frame)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.level = lvl
	}
}

// Level returns the last observed level.
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Close resets the level and stops further updates.
func (m *Meter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.level = 0
	return nil
}

// Loudness maps the RMS of frame to the 0-100 meter scale.
func Loudness(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	lvl := (db - meterFloorDB) / -meterFloorDB * 100
	return math.Max(0, math.Min(100, lvl))
}
