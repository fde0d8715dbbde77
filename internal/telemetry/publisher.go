// Package telemetry publishes the device position onto the location feed on
// a fixed cadence, independent of viewer traffic.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/domain"
	"github.com/pscheid92/gpsrelay/internal/metrics"
	"github.com/pscheid92/gpsrelay/internal/platform/correlation"
)

const DefaultInterval = 5 * time.Second

// Broadcaster is the part of the hub the publisher needs.
type Broadcaster interface {
	Publish(msg domain.LocationMessage) error
}

// Publisher samples a PositionSource every interval and pushes a module
// message into the hub.
type Publisher struct {
	source   domain.PositionSource
	hub      Broadcaster
	clock    clockwork.Clock
	interval time.Duration
}

// NewPublisher creates a publisher. A non-positive interval means DefaultInterval.
func NewPublisher(source domain.PositionSource, hub Broadcaster, clock clockwork.Clock, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{
		source:   source,
		hub:      hub,
		clock:    clock,
		interval: interval,
	}
}

// Run publishes on every tick. It blocks until ctx is cancelled.
// The first publication happens one interval after Run starts.
func (p *Publisher) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("Telemetry publisher started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Telemetry publisher stopped")
			return
		case <-ticker.Chan():
			tickCtx := correlation.WithID(ctx, correlation.NewID())
			if err := p.PublishOnce(tickCtx); err != nil {
				slog.WarnContext(tickCtx, "Telemetry: publish failed", "error", err)
			}
		}
	}
}

// PublishOnce samples the source and publishes one module message.
// A sample without a fix is still published, with zeroed coordinates.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	sample := p.source.Current()
	msg := ModuleMessage(sample)

	if err := p.hub.Publish(msg); err != nil {
		metrics.TelemetryPublishFailures.Inc()
		return fmt.Errorf("publish module position: %w", err)
	}

	fix := "valid"
	if !sample.Valid {
		fix = "no_fix"
	}
	metrics.TelemetryTicksTotal.WithLabelValues(fix).Inc()

	slog.DebugContext(ctx, "Telemetry: published module position", "fix", fix, "lat", msg.Latitude, "lng", msg.Longitude, "satellites", sample.Satellites)
	return nil
}

// ModuleMessage turns a sample into the device feed message. The wire format
// has no validity flag; viewers see "no fix" as 0,0.
func ModuleMessage(sample domain.PositionSample) domain.LocationMessage {
	msg := domain.LocationMessage{
		Kind:          domain.KindModule,
		ParticipantID: domain.ModuleParticipantID,
	}
	if sample.Valid {
		msg.Latitude = sample.Latitude
		msg.Longitude = sample.Longitude
	}
	return msg
}
