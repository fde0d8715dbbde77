package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type positionResponse struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Valid      bool    `json:"valid"`
	Satellites uint    `json:"satellites"`
	SpeedKmh   float64 `json:"speed_kmh"`
	AgeSeconds float64 `json:"age_seconds"`
	Stale      bool    `json:"stale"`
}

// handlePosition returns the device's current sample. A sample is stale when
// it was never taken or is older than GPS_STALE_AFTER.
func (s *Server) handlePosition(c echo.Context) error {
	sample := s.source.Current()
	age := sample.Age(s.clock.Now())

	resp := positionResponse{
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Valid:      sample.Valid,
		Satellites: sample.Satellites,
		SpeedKmh:   sample.SpeedKmh,
		AgeSeconds: age.Seconds(),
		Stale:      sample.SampledAt.IsZero() || age > s.config.GPSStaleAfter,
	}
	if !sample.Valid {
		resp.Latitude, resp.Longitude, resp.SpeedKmh = 0, 0, 0
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write position response: %w", err)
	}
	return nil
}
