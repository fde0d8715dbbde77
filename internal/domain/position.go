package domain

import "time"

// PositionSample is an immutable snapshot of the device fix.
// The zero value is an invalid sample (no fix yet).
type PositionSample struct {
	Latitude   float64
	Longitude  float64
	Valid      bool
	Satellites uint
	SpeedKmh   float64
	SampledAt  time.Time
}

// Age returns how old the sample is at now. A sample that was never
// taken has no meaningful age and reports zero.
func (s PositionSample) Age(now time.Time) time.Duration {
	if s.SampledAt.IsZero() {
		return 0
	}
	return now.Sub(s.SampledAt)
}

// PositionSource exposes the latest device fix.
// Current must never block on hardware I/O.
type PositionSource interface {
	Current() PositionSample
}
