package gps

import (
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/domain"
)

// Static is a fixed position source for running without a receiver.
type Static struct {
	sample domain.PositionSample
	clock  clockwork.Clock
}

// NewStatic returns a source that always reports a valid fix at lat, lng.
// Every read is stamped with the current time, so the fix never goes stale.
func NewStatic(lat, lng float64, clock clockwork.Clock) *Static {
	return &Static{
		sample: domain.PositionSample{
			Latitude:  lat,
			Longitude: lng,
			Valid:     true,
		},
		clock: clock,
	}
}

// NoFix returns a source that never has a fix.
func NoFix() *Static {
	return &Static{}
}

func (s *Static) Current() domain.PositionSample {
	sample := s.sample
	if sample.Valid && s.clock != nil {
		sample.SampledAt = s.clock.Now()
	}
	return sample
}
