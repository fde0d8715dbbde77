package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/adrianmo/go-nmea"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/domain"
	"github.com/pscheid92/gpsrelay/internal/metrics"
)

const knotsToKmh = 1.852

var ErrUnsupportedBaud = errors.New("unsupported baud rate")

// Source holds the latest sample parsed from an NMEA stream.
// A single reader feeds it; Current may be called from any goroutine.
type Source struct {
	clock  clockwork.Clock
	latest atomic.Pointer[domain.PositionSample]
}

func NewSource(clock clockwork.Clock) *Source {
	s := &Source{clock: clock}
	s.latest.Store(&domain.PositionSample{})
	return s
}

// Current returns the latest sample. It never blocks.
func (s *Source) Current() domain.PositionSample {
	return *s.latest.Load()
}

// Run reads sentences from r until it fails or ctx is cancelled.
// Cancelling ctx does not interrupt a blocked read; close r for that.
func (s *Source) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	// Sentences are at most 82 chars; leave room for receiver chatter.
	scanner.Buffer(make([]byte, 0, 256), 4096)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		s.HandleLine(scanner.Text())
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read nmea: %w", err)
	}
	return io.EOF
}

// HandleLine parses one sentence and folds it into the current sample.
func (s *Source) HandleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		metrics.GPSSentencesTotal.WithLabelValues("invalid").Inc()
		slog.Debug("GPS: dropping unparsable sentence", "error", err)
		return
	}

	next := s.Current()
	switch m := sentence.(type) {
	case nmea.RMC:
		next.Valid = m.Validity == nmea.ValidRMC
		if next.Valid {
			next.Latitude = m.Latitude
			next.Longitude = m.Longitude
			next.SpeedKmh = m.Speed * knotsToKmh
		}
	case nmea.GGA:
		if m.NumSatellites >= 0 {
			next.Satellites = uint(m.NumSatellites)
		}
		if m.FixQuality == nmea.Invalid {
			next.Valid = false
		}
	default:
		metrics.GPSSentencesTotal.WithLabelValues("ignored").Inc()
		return
	}

	next.SampledAt = s.clock.Now()
	s.latest.Store(&next)

	metrics.GPSSentencesTotal.WithLabelValues("parsed").Inc()
	metrics.GPSSatellites.Set(float64(next.Satellites))
	if next.Valid {
		metrics.GPSFixValid.Set(1)
	} else {
		metrics.GPSFixValid.Set(0)
	}
}
