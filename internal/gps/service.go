package gps

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/metrics"
)

const DefaultRestartDelay = 2 * time.Second

// Config controls the serial reader.
type Config struct {
	Device       string
	Baud         int
	RestartDelay time.Duration
}

// Opener opens the receiver's byte stream.
type Opener func(device string, baud int) (io.ReadCloser, error)

func openSerialDevice(device string, baud int) (io.ReadCloser, error) {
	f, err := OpenSerial(device, baud)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Service keeps a Source fed from a serial device, reopening it after
// errors. Receiver failures never stop the process; the source just
// goes stale.
type Service struct {
	cfg    Config
	source *Source
	clock  clockwork.Clock
	open   Opener
}

// NewService creates a reader service. A nil opener opens a real tty.
func NewService(cfg Config, source *Source, clock clockwork.Clock, open Opener) *Service {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if open == nil {
		open = openSerialDevice
	}
	return &Service{cfg: cfg, source: source, clock: clock, open: open}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	slog.Info("GPS reader started", "device", s.cfg.Device, "baud", s.cfg.Baud)

	for {
		if err := s.readOnce(ctx); err != nil {
			metrics.GPSReaderRestarts.Inc()
			slog.Warn("GPS reader failed, restarting", "device", s.cfg.Device, "error", err, "delay", s.cfg.RestartDelay)
		}

		select {
		case <-ctx.Done():
			slog.Info("GPS reader stopped")
			return
		case <-s.clock.After(s.cfg.RestartDelay):
		}
	}
}

func (s *Service) readOnce(ctx context.Context) error {
	stream, err := s.open(s.cfg.Device, s.cfg.Baud)
	if err != nil {
		return err
	}

	// Closing the stream unblocks a pending read on cancel.
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer func() {
		if stop() {
			_ = stream.Close()
		}
	}()

	return s.source.Run(ctx, stream)
}
