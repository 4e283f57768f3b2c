package observation

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
)

// BufferConfig describes the observations a Buffer keeps for one sensor source.
type BufferConfig struct {
	// Name identifies the source in logs.
	Name string
	// KeepTime is how long observations are kept after the newest one arrived.
	// Zero keeps only the newest observation.
	KeepTime time.Duration
	// ExpectedUpdateInterval is the longest gap between insertions before the buffer
	// reports itself as not current. Zero disables the check.
	ExpectedUpdateInterval time.Duration
	// MinObstacleHeight and MaxObstacleHeight bound the z coordinate of kept points.
	MinObstacleHeight float64
	MaxObstacleHeight float64
	ObstacleRange     float64
	RaytraceRange     float64
}

// Buffer is a rolling window of recent observations from one sensor source. It is written
// by that source's ingestion goroutine and read by the update cycle; each call holds the
// lock only for the duration of its own copy.
type Buffer struct {
	cfg    BufferConfig
	clock  clock.Clock
	logger logging.Logger

	mu           sync.Mutex
	observations []Observation // newest first
	lastUpdated  time.Time
}

// NewBuffer returns an empty Buffer whose staleness timer starts now.
func NewBuffer(cfg BufferConfig, clk clock.Clock, logger logging.Logger) *Buffer {
	if clk == nil {
		clk = clock.New()
	}
	return &Buffer{
		cfg:         cfg,
		clock:       clk,
		logger:      logger,
		lastUpdated: clk.Now(),
	}
}

// Name returns the name of the source the buffer belongs to.
func (b *Buffer) Name() string {
	return b.cfg.Name
}

// Insert buffers the points of a world frame point cloud seen from origin.
func (b *Buffer) Insert(cloud pointcloud.PointCloud, origin r3.Vector, captureTime time.Time) {
	points := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		points = append(points, p)
		return true
	})
	b.InsertPoints(points, origin, captureTime)
}

// InsertPoints buffers world frame points seen from origin. Points outside the configured
// height band are dropped.
func (b *Buffer) InsertPoints(points []r3.Vector, origin r3.Vector, captureTime time.Time) {
	kept := make([]r3.Vector, 0, len(points))
	for _, p := range points {
		if p.Z <= b.cfg.MaxObstacleHeight && p.Z >= b.cfg.MinObstacleHeight {
			kept = append(kept, p)
		}
	}
	obs := Observation{
		Origin:        origin,
		Points:        kept,
		ObstacleRange: b.cfg.ObstacleRange,
		RaytraceRange: b.cfg.RaytraceRange,
		Timestamp:     captureTime,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.observations = append([]Observation{obs}, b.observations...)
	b.lastUpdated = b.clock.Now()
	b.purgeStaleObservations()
}

// Snapshot returns a copy of the buffered observations, newest first, and whether the
// buffer is current.
func (b *Buffer) Snapshot() ([]Observation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeStaleObservations()
	out := make([]Observation, len(b.observations))
	copy(out, b.observations)
	return out, b.isCurrent()
}

// IsCurrent reports whether the buffer received data within its expected update interval.
func (b *Buffer) IsCurrent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isCurrent()
}

// ResetLastUpdated restarts the staleness timer.
func (b *Buffer) ResetLastUpdated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdated = b.clock.Now()
}

func (b *Buffer) isCurrent() bool {
	if b.cfg.ExpectedUpdateInterval == 0 {
		return true
	}
	since := b.clock.Since(b.lastUpdated)
	current := since <= b.cfg.ExpectedUpdateInterval
	if !current && b.logger != nil {
		b.logger.Warnf(
			"the %s observation buffer has not been updated for %.2f seconds, and it should be updated every %.2f seconds",
			b.cfg.Name, since.Seconds(), b.cfg.ExpectedUpdateInterval.Seconds())
	}
	return current
}

// purgeStaleObservations must be called with mu held.
func (b *Buffer) purgeStaleObservations() {
	if len(b.observations) == 0 {
		return
	}
	if b.cfg.KeepTime == 0 {
		b.observations = b.observations[:1]
		return
	}
	for i, obs := range b.observations {
		if b.lastUpdated.Sub(obs.Timestamp) > b.cfg.KeepTime {
			b.observations = b.observations[:i]
			return
		}
	}
}
