package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/pkg/logger"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHub(logger.Nop())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) contracts.SettlementEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event contracts.SettlementEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestHub_BroadcastsSettlementEvents(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Publish(contracts.SettlementEvent{Type: "game_settled", GameCode: "G1", WinnerID: "P1", Participants: 3})

	event := readEvent(t, conn)
	assert.Equal(t, "G1", event.GameCode)
	assert.Equal(t, "P1", event.WinnerID)
	assert.Equal(t, 3, event.Participants)
}

func TestHub_FiltersByGame(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "?game=G2")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Publish(contracts.SettlementEvent{GameCode: "G1"})
	h.Publish(contracts.SettlementEvent{GameCode: "G2"})

	assert.Equal(t, "G2", readEvent(t, conn).GameCode)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub(logger.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(contracts.SettlementEvent{GameCode: "G"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}
