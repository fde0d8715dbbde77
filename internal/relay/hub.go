package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gpsrelay/internal/codec"
	"github.com/pscheid92/gpsrelay/internal/domain"
	"github.com/pscheid92/gpsrelay/internal/metrics"
	"github.com/pscheid92/gpsrelay/internal/registry"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	commandCapacity = 256
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type attachCmd struct {
	baseHubCmd
	conn         Conn
	errorChannel chan error
}

type inboundCmd struct {
	baseHubCmd
	conn         Conn
	msg          domain.LocationMessage
	raw          []byte
	errorChannel chan error
}

type publishCmd struct {
	baseHubCmd
	kind         domain.Kind
	raw          []byte
	errorChannel chan error
}

type detachCmd struct {
	baseHubCmd
	conn        Conn
	doneChannel chan struct{}
}

type identityCmd struct {
	baseHubCmd
	connID       string
	replyChannel chan identityReply
}

type identityReply struct {
	identity domain.Identity
	ok       bool
}

type countCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns the set of attached viewer connections and the identity registry.
// All state lives in a single goroutine; public methods send commands to it
// and wait for the reply.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	conns       map[string]Conn
	identities  *registry.Registry
	maxClients  int
	stopTimeout time.Duration
	done        chan struct{}
	stopOnce    sync.Once
}

// NewHub creates and starts a hub.
// maxClients caps attached connections; zero or less means unlimited.
func NewHub(clock clockwork.Clock, maxClients int) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandCapacity),
		clock:       clock,
		conns:       make(map[string]Conn),
		identities:  registry.New(),
		maxClients:  maxClients,
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}
	go h.run()
	return h
}

// Attach adds conn to the live set. Nothing is sent to it until the next
// broadcast; there is no join-time snapshot.
func (h *Hub) Attach(conn Conn) error {
	errCh := make(chan error, 1)
	if err := h.submit(attachCmd{conn: conn, errorChannel: errCh}); err != nil {
		return err
	}
	return h.awaitError("attach", errCh)
}

// HandleInbound decodes raw and, on success, relays it verbatim to every
// attached connection including the sender. Client messages also record the
// sender's identity. A decode failure is returned as *codec.DecodeError and
// has no other effect.
func (h *Hub) HandleInbound(conn Conn, raw []byte) error {
	msg, err := codec.Decode(raw)
	if err != nil {
		metrics.HubDecodeFailures.Inc()
		slog.Debug("Dropping undecodable viewer message", "connection_id", conn.ID(), "error", err)
		return err
	}

	errCh := make(chan error, 1)
	if err := h.submit(inboundCmd{conn: conn, msg: msg, raw: raw, errorChannel: errCh}); err != nil {
		return err
	}
	return h.awaitError("inbound", errCh)
}

// Publish encodes msg and fans it out to every attached connection without
// touching the identity registry. Used by the device feed.
func (h *Hub) Publish(msg domain.LocationMessage) error {
	raw, err := codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	errCh := make(chan error, 1)
	if err := h.submit(publishCmd{kind: msg.Kind, raw: raw, errorChannel: errCh}); err != nil {
		return err
	}
	return h.awaitError("publish", errCh)
}

// Detach removes conn from the live set and, if the viewer had identified
// itself, broadcasts a remove message to the remaining connections.
// Detaching a connection that is not attached is a no-op.
func (h *Hub) Detach(conn Conn) {
	doneCh := make(chan struct{})
	if err := h.submit(detachCmd{conn: conn, doneChannel: doneCh}); err != nil {
		return
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case <-doneCh:
	case <-h.done:
	case <-timer.Chan():
		slog.Warn("Detach timed out", "connection_id", conn.ID(), "timeout", commandTimeout)
	}
}

// Identity returns the identity the viewer on conn last claimed.
func (h *Hub) Identity(conn Conn) (domain.Identity, bool) {
	replyCh := make(chan identityReply, 1)
	if err := h.submit(identityCmd{connID: conn.ID(), replyChannel: replyCh}); err != nil {
		return domain.Identity{}, false
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r := <-replyCh:
		return r.identity, r.ok
	case <-h.done:
		return domain.Identity{}, false
	case <-timer.Chan():
		return domain.Identity{}, false
	}
}

// ClientCount returns the number of attached connections.
// Returns -1 if the command times out.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if err := h.submit(countCmd{replyChannel: replyCh}); err != nil {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every attached connection and shuts the hub down.
// Blocks until the hub goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		select {
		case h.cmdCh <- stopCmd{}:
		case <-h.done:
			return
		}

		timeout := h.clock.NewTimer(h.stopTimeout)
		defer timeout.Stop()

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Hub stop timeout exceeded", "timeout", h.stopTimeout)
			metrics.HubStopTimeoutsTotal.Inc()
		}
	})
}

// Done is closed once the hub goroutine has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) submit(cmd hubCmd) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) awaitError(op string, errCh chan error) error {
	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-h.done:
		// The command may have been answered right before shutdown.
		select {
		case err := <-errCh:
			return err
		default:
			return ErrHubStopped
		}
	case <-timer.Chan():
		return fmt.Errorf("%s: %w after %v", op, ErrCommandTimedOut, commandTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	// Panic recovery wrapper
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAll("relay failure")
		}
	}()

	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))

			if depth > commandCapacity*4/5 {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case attachCmd:
				h.handleAttach(c)
			case inboundCmd:
				h.handleInbound(c)
			case publishCmd:
				h.fanOut(c.raw, c.kind)
				c.errorChannel <- nil
			case detachCmd:
				h.handleDetach(c)
			case identityCmd:
				identity, ok := h.identities.Resolve(c.connID)
				c.replyChannel <- identityReply{identity: identity, ok: ok}
			case countCmd:
				c.replyChannel <- len(h.conns)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleAttach(c attachCmd) {
	id := c.conn.ID()
	if _, exists := h.conns[id]; exists {
		c.errorChannel <- ErrAlreadyAttached
		return
	}

	if h.maxClients > 0 && len(h.conns) >= h.maxClients {
		slog.Warn("Rejecting viewer: max clients reached", "connection_id", id, "max_clients", h.maxClients)
		c.errorChannel <- fmt.Errorf("%w (%d)", ErrHubFull, h.maxClients)
		return
	}

	h.conns[id] = c.conn
	metrics.HubAttachedConnections.Set(float64(len(h.conns)))

	slog.Debug("Viewer attached", "connection_id", id, "total_clients", len(h.conns))
	c.errorChannel <- nil
}

func (h *Hub) handleInbound(c inboundCmd) {
	id := c.conn.ID()
	if _, exists := h.conns[id]; !exists {
		c.errorChannel <- ErrNotAttached
		return
	}

	if c.msg.Kind == domain.KindClient {
		h.identities.Associate(id, domain.Identity{
			ParticipantID: c.msg.ParticipantID,
			DisplayName:   c.msg.DisplayName,
		})
		metrics.HubIdentifiedViewers.Set(float64(h.identities.Len()))
	}

	h.fanOut(c.raw, c.msg.Kind)
	c.errorChannel <- nil
}

func (h *Hub) handleDetach(c detachCmd) {
	if removal, ok := h.remove(c.conn.ID(), "detached"); ok {
		h.fanOut(removal, domain.KindRemove)
	}
	close(c.doneChannel)
}

// fanOut delivers raw to every attached connection. Connections whose send
// fails are detached after the pass; their remove messages are delivered in
// follow-up passes until no send fails.
func (h *Hub) fanOut(raw []byte, kind domain.Kind) {
	type pending struct {
		raw  []byte
		kind domain.Kind
	}
	queue := []pending{{raw: raw, kind: kind}}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		var failed []string
		for id, conn := range h.conns {
			if err := conn.Send(next.raw); err != nil {
				metrics.HubSendFailures.WithLabelValues(sendFailureReason(err)).Inc()
				slog.Warn("Send to viewer failed, detaching", "connection_id", id, "error", err)
				failed = append(failed, id)
			}
		}
		metrics.HubMessagesRelayed.WithLabelValues(string(next.kind)).Inc()

		for _, id := range failed {
			if removal, ok := h.remove(id, "send failed"); ok {
				queue = append(queue, pending{raw: removal, kind: domain.KindRemove})
			}
		}
	}
}

// remove drops the connection and its identity. It returns the encoded
// remove message when the viewer had identified itself.
func (h *Hub) remove(id, reason string) ([]byte, bool) {
	conn, exists := h.conns[id]
	if !exists {
		return nil, false
	}

	delete(h.conns, id)
	_ = conn.Close()
	metrics.HubAttachedConnections.Set(float64(len(h.conns)))

	identity, known := h.identities.Resolve(id)
	h.identities.Remove(id)
	metrics.HubIdentifiedViewers.Set(float64(h.identities.Len()))

	if !known {
		slog.Debug("Anonymous viewer detached", "connection_id", id, "reason", reason, "remaining_clients", len(h.conns))
		return nil, false
	}

	removal, err := codec.Encode(codec.RemoveMessage(identity.ParticipantID))
	if err != nil {
		slog.Error("Failed to encode remove message", "participant_id", identity.ParticipantID, "error", err)
		return nil, false
	}

	metrics.HubRemovalsBroadcast.Inc()
	slog.Debug("Viewer detached", "connection_id", id, "participant_id", identity.ParticipantID, "reason", reason, "remaining_clients", len(h.conns))
	return removal, true
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "clients", len(h.conns))
	total := len(h.conns)
	h.closeAll("server shutting down")
	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

// closeAll closes every connection without broadcasting removals.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAll(reason string) {
	var wg sync.WaitGroup
	for id, conn := range h.conns {
		if rc, ok := conn.(reasonCloser); ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = rc.CloseWithReason(reason)
			}()
		} else {
			_ = conn.Close()
		}
		delete(h.conns, id)
	}
	wg.Wait()

	h.identities.Clear()
	metrics.HubAttachedConnections.Set(0)
	metrics.HubIdentifiedViewers.Set(0)
}

func sendFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrSendBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrConnClosed):
		return "closed"
	default:
		return "error"
	}
}
