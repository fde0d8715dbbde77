package httpserver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/domain"
	"github.com/pscheid92/gpsrelay/internal/gps"
	"github.com/pscheid92/gpsrelay/internal/platform/config"
	"github.com/pscheid92/gpsrelay/internal/relay"
)

// --- Test doubles ---

type stubHub struct {
	mu       sync.Mutex
	attached map[string]relay.Conn
	attachFn func(relay.Conn) error
	detachFn func(relay.Conn)
}

func newStubHub() *stubHub {
	return &stubHub{attached: make(map[string]relay.Conn)}
}

func (h *stubHub) Attach(conn relay.Conn) error {
	if h.attachFn != nil {
		if err := h.attachFn(conn); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[conn.ID()] = conn
	return nil
}

func (h *stubHub) HandleInbound(relay.Conn, []byte) error { return nil }

func (h *stubHub) Detach(conn relay.Conn) {
	if h.detachFn != nil {
		h.detachFn(conn)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attached, conn.ID())
}

func (h *stubHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attached)
}

type testDeps struct {
	cfg    *config.Config
	clock  clockwork.Clock
	hub    hubService
	source domain.PositionSource
	checks []HealthCheck
}

type testOption func(*testDeps)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "test",
		Port:                "0",
		GPSStaleAfter:       5 * time.Second,
		PublishInterval:     5 * time.Second,
		MaxClients:          10,
		MaxConnectionsPerIP: 10,
		ConnectionRate:      100,
		ConnectionBurst:     100,
		SendBufferSize:      16,
		WriteTimeout:        time.Second,
	}
}

func newTestServer(t *testing.T, opts ...testOption) *Server {
	t.Helper()

	deps := &testDeps{
		cfg:    testConfig(),
		clock:  clockwork.NewRealClock(),
		hub:    newStubHub(),
		source: gps.NoFix(),
	}
	for _, opt := range opts {
		opt(deps)
	}

	return NewServer(deps.cfg, deps.clock, deps.hub, deps.source, deps.checks)
}

func withConfig(mutate func(*config.Config)) testOption {
	return func(d *testDeps) { mutate(d.cfg) }
}

func withClock(clock clockwork.Clock) testOption {
	return func(d *testDeps) { d.clock = clock }
}

func withHub(hub hubService) testOption {
	return func(d *testDeps) { d.hub = hub }
}

func withSource(source domain.PositionSource) testOption {
	return func(d *testDeps) { d.source = source }
}

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(d *testDeps) { d.checks = checks }
}

func healthOK(context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}
