package signal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludoteko/internal/game"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Serve(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversSignals(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()
	conn := dialHub(t, hub)

	// Registration happens inside Serve on the server goroutine.
	time.Sleep(50 * time.Millisecond)
	hub.Publish(Signal{Kind: KindScoreDelta, Game: game.Memory, Amount: 15, Total: 15})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Signal
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, KindScoreDelta, got.Kind)
	assert.Equal(t, game.Memory, got.Game)
	assert.Equal(t, 15, got.Amount)
}

func TestHubFansOutToAllClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()
	a := dialHub(t, hub)
	b := dialHub(t, hub)

	time.Sleep(50 * time.Millisecond)
	hub.Publish(Signal{Kind: KindRoundComplete, Game: game.Hangman})

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got Signal
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, KindRoundComplete, got.Kind)
	}
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	// Must not block or panic.
	hub.Publish(Signal{Kind: KindAllRoundsPassed, Game: game.Puzzle})
}

func TestHubCloseClosesConnections(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialHub(t, hub)

	time.Sleep(50 * time.Millisecond)
	hub.Close()

	// The write loop must close the socket, not just stop writing, so the
	// peer observes the disconnect instead of a lingering open socket.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()
	conn := dialHub(t, hub)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Close())
	time.Sleep(50 * time.Millisecond)

	hub.mu.Lock()
	remaining := len(hub.clients)
	hub.mu.Unlock()
	assert.Equal(t, 0, remaining)
}
