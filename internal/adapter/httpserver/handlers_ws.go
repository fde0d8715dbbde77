package httpserver

import (
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/gpsrelay/internal/codec"
	"github.com/pscheid92/gpsrelay/internal/metrics"
	"github.com/pscheid92/gpsrelay/internal/platform/config"
	apperrors "github.com/pscheid92/gpsrelay/internal/platform/errors"
	"github.com/pscheid92/gpsrelay/internal/relay"
)

// Location messages are tiny; anything larger is a protocol violation.
const maxMessageSize = 4096

func newUpgrader(cfg *config.Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newCheckOrigin(cfg.AllowedOriginList(), cfg.IsDevelopment()),
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return apperrors.ValidationError("websocket upgrade required")
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		switch reason {
		case LimitReasonRate:
			return apperrors.RateLimitedError("too many connection attempts").WithField("reason", string(reason))
		case LimitReasonPerIP:
			return apperrors.UnavailableError("connection limit reached", nil).
				WithField("reason", string(reason)).
				WithField("open_for_ip", s.limits.OpenFor(ip))
		default:
			return apperrors.UnavailableError("connection limit reached", nil).WithField("reason", string(reason))
		}
	}
	defer s.limits.Release(ip)

	raw, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		metrics.WebSocketConnectionsRejected.WithLabelValues("upgrade_failed").Inc()
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	conn := relay.NewWSConn(raw, s.clock, s.config.SendBufferSize, s.config.WriteTimeout)
	conn.SetReadLimit(maxMessageSize)

	ctx := c.Request().Context()
	if err := s.hub.Attach(conn); err != nil {
		metrics.WebSocketConnectionsRejected.WithLabelValues("hub_refused").Inc()
		slog.WarnContext(ctx, "Hub refused viewer", "connection_id", conn.ID(), "remote_ip", ip, "error", err)
		_ = conn.CloseWithReason("relay unavailable")
		return nil
	}

	metrics.WebSocketConnectionsTotal.Inc()
	start := s.clock.Now()
	slog.InfoContext(ctx, "Viewer connected", "connection_id", conn.ID(), "remote_ip", ip)

	s.readPump(conn)

	s.hub.Detach(conn)
	// Detach can time out without closing the socket; Wait needs the writer gone.
	_ = conn.Close()
	conn.Wait()
	metrics.WebSocketConnectionDuration.Observe(s.clock.Since(start).Seconds())
	slog.InfoContext(ctx, "Viewer disconnected", "connection_id", conn.ID(), "remote_ip", ip)
	return nil
}

// readPump feeds inbound frames to the hub until the socket fails or the
// hub no longer knows the connection.
func (s *Server) readPump(conn *relay.WSConn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read failed", "connection_id", conn.ID(), "error", err)
			}
			return
		}

		err = s.hub.HandleInbound(conn, data)
		var decodeErr *codec.DecodeError
		switch {
		case err == nil, errors.As(err, &decodeErr):
			continue
		default:
			return
		}
	}
}
