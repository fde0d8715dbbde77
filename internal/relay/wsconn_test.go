package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })
	return serverConn, clientConn
}

func readText(t *testing.T, conn *ws.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, ws.TextMessage, msgType)
	return string(data)
}

func TestWSConn_SendDelivers(t *testing.T) {
	server, client := newTestConnPair(t)
	conn := NewWSConn(server, clockwork.NewRealClock(), 4, time.Second)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.Send([]byte(`{"type":"remove","id":"a"}`)))
	require.NoError(t, conn.Send([]byte(`{"type":"remove","id":"b"}`)))

	assert.Equal(t, `{"type":"remove","id":"a"}`, readText(t, client))
	assert.Equal(t, `{"type":"remove","id":"b"}`, readText(t, client))
}

func TestWSConn_UniqueIDs(t *testing.T) {
	s1, _ := newTestConnPair(t)
	s2, _ := newTestConnPair(t)
	c1 := NewWSConn(s1, clockwork.NewRealClock(), 0, 0)
	c2 := NewWSConn(s2, clockwork.NewRealClock(), 0, 0)
	t.Cleanup(func() { _ = c1.Close(); _ = c2.Close() })

	assert.NotEmpty(t, c1.ID())
	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestWSConn_SendBufferFull(t *testing.T) {
	// No writer goroutine, so the buffer never drains.
	conn := &WSConn{
		id:          "stuck",
		sendChannel: make(chan []byte, 1),
		doneChannel: make(chan struct{}),
	}

	require.NoError(t, conn.Send([]byte("first")))
	assert.ErrorIs(t, conn.Send([]byte("second")), ErrSendBufferFull)
}

func TestWSConn_SendAfterClose(t *testing.T) {
	server, _ := newTestConnPair(t)
	conn := NewWSConn(server, clockwork.NewRealClock(), 0, 0)

	require.NoError(t, conn.Close())
	conn.Wait()

	assert.ErrorIs(t, conn.Send([]byte("late")), ErrConnClosed)
}

func TestWSConn_CloseIdempotent(t *testing.T) {
	server, _ := newTestConnPair(t)
	conn := NewWSConn(server, clockwork.NewRealClock(), 0, 0)

	assert.NotPanics(t, func() {
		_ = conn.Close()
		_ = conn.Close()
		_ = conn.CloseWithReason("again")
	})

	select {
	case <-conn.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestWSConn_CloseWithReason(t *testing.T) {
	server, client := newTestConnPair(t)
	conn := NewWSConn(server, clockwork.NewRealClock(), 0, 0)

	require.NoError(t, conn.CloseWithReason("server shutting down"))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)

	var closeErr *ws.CloseError
	if assert.ErrorAs(t, err, &closeErr) {
		assert.Equal(t, ws.CloseGoingAway, closeErr.Code)
		assert.Contains(t, closeErr.Text, "shutting down")
	}
}

func TestWSConn_ReadMessage(t *testing.T) {
	server, client := newTestConnPair(t)
	conn := NewWSConn(server, clockwork.NewRealClock(), 0, 0)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, client.WriteMessage(ws.TextMessage, []byte(`{"type":"client","id":"c1"}`)))

	data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"client","id":"c1"}`, string(data))
}

func TestWSConn_ReadLimit(t *testing.T) {
	server, client := newTestConnPair(t)
	conn := NewWSConn(server, clockwork.NewRealClock(), 0, 0)
	t.Cleanup(func() { _ = conn.Close() })
	conn.SetReadLimit(16)

	require.NoError(t, client.WriteMessage(ws.TextMessage, []byte(strings.Repeat("x", 64))))

	_, err := conn.ReadMessage()
	assert.Error(t, err)
}

// testHub wires a Hub behind a websocket endpoint the way the HTTP layer does.
func testHub(t *testing.T) (*Hub, func() *ws.Conn) {
	t.Helper()

	hub := NewHub(clockwork.NewRealClock(), 0)
	t.Cleanup(hub.Stop)

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		conn := NewWSConn(raw, clockwork.NewRealClock(), 0, 0)
		if err := hub.Attach(conn); err != nil {
			_ = conn.Close()
			return
		}

		go func() {
			defer hub.Detach(conn)
			for {
				data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				_ = hub.HandleInbound(conn, data)
			}
		}()
	}))
	t.Cleanup(server.Close)

	dial := func() *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	return hub, dial
}

func waitForClientCount(hub *Hub, expected int) bool {
	for n := 0; n < 200; n++ {
		if hub.ClientCount() == expected {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestHub_OverWebsocket(t *testing.T) {
	hub, dial := testHub(t)

	alice := dial()
	bob := dial()
	require.True(t, waitForClientCount(hub, 2))

	clientMsg := `{"type":"client","id":"c1","name":"Alice","lat":10,"lng":20}`
	require.NoError(t, alice.WriteMessage(ws.TextMessage, []byte(clientMsg)))

	assert.Equal(t, clientMsg, readText(t, alice))
	assert.Equal(t, clientMsg, readText(t, bob))

	// Garbage is dropped and the connection stays usable.
	require.NoError(t, alice.WriteMessage(ws.TextMessage, []byte(`garbage`)))
	require.NoError(t, alice.WriteMessage(ws.TextMessage, []byte(clientMsg)))
	assert.Equal(t, clientMsg, readText(t, bob))

	require.NoError(t, alice.Close())
	require.True(t, waitForClientCount(hub, 1))

	var removal map[string]any
	require.NoError(t, json.Unmarshal([]byte(readText(t, bob)), &removal))
	assert.Equal(t, map[string]any{"type": "remove", "id": "c1"}, removal)
}
