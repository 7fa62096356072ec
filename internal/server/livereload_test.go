package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*ReloadHub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewReloadHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForClients(t *testing.T, hub *ReloadHub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n },
		5*time.Second, 10*time.Millisecond)
}

func TestReloadHub_BroadcastReachesClients(t *testing.T) {
	hub, srv := startHub(t)
	first := dialHub(t, srv)
	second := dialHub(t, srv)
	waitForClients(t, hub, 2)

	hub.Broadcast(ReloadMessage{Type: MessageReload, Path: "public/javascripts/a.coffee"})

	for _, conn := range []*websocket.Conn{first, second} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		typ, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)

		var msg ReloadMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageReload, msg.Type)
		assert.Equal(t, "public/javascripts/a.coffee", msg.Path)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestReloadHub_ClientDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")

	waitForClients(t, hub, 0)
}

func TestReloadHub_BroadcastAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewReloadHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast(ReloadMessage{Type: MessageReload})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked after the hub stopped")
	}
}
