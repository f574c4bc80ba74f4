package obscura

import (
	"sync"
	"time"
)

// Stats is a snapshot of pipeline throughput.
type Stats struct {
	// Frames is the number of frames dispatched.
	Frames uint64

	// Elapsed is the wall-clock time since the first frame was acquired.
	Elapsed time.Duration

	// FPS is the most recent throughput sample: Frames / Elapsed at the
	// last report interval, or at loop end.
	FPS float64

	// Width and Height are the negotiated frame size.
	Width, Height uint32
}

// meter tracks throughput for one run.
type meter struct {
	mu       sync.Mutex
	now      func() time.Time
	interval uint64
	start    time.Time
	stats    Stats
}

func newMeter(now func() time.Time, interval uint64) *meter {
	return &meter{now: now, interval: interval}
}

func (m *meter) begin(width, height uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = m.now()
	m.stats = Stats{Width: width, Height: height}
}

// frame counts one dispatched frame and reports whether a throughput
// sample was taken.
func (m *meter) frame() (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Frames++
	if m.interval == 0 || m.stats.Frames%m.interval != 0 {
		return m.stats, false
	}
	m.sampleLocked()
	return m.stats, true
}

// finish takes a final sample.
func (m *meter) finish() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleLocked()
	return m.stats
}

func (m *meter) sampleLocked() {
	m.stats.Elapsed = m.now().Sub(m.start)
	if s := m.stats.Elapsed.Seconds(); s > 0 {
		m.stats.FPS = float64(m.stats.Frames) / s
	}
}

func (m *meter) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
