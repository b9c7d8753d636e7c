package wshub

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytmp3convert/internal/core/domain"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, r.URL.Query().Get("session")).Serve()
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNote(t *testing.T, conn *websocket.Conn) domain.Notification {
	t.Helper()
	var n domain.Notification
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&n))
	return n
}

func TestHub_RoutesBySession(t *testing.T) {
	hub, srv := startHub(t)

	s1 := dial(t, srv, "s1")
	all := dial(t, srv, AllSessions)
	require.Eventually(t, func() bool {
		return hub.ClientCount("s1") == 1 && hub.ClientCount(AllSessions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Notify(domain.Notification{JobID: "j2", Session: "s2", Message: "first"})
	hub.Notify(domain.Notification{JobID: "j1", Session: "s1", Message: "second", State: domain.StatePolling})

	got := readNote(t, s1)
	assert.Equal(t, "second", got.Message)
	assert.Equal(t, domain.StatePolling, got.State)

	assert.Equal(t, "first", readNote(t, all).Message)
	assert.Equal(t, "second", readNote(t, all).Message)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv, "s1")
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_NotifyNeverBlocks(t *testing.T) {
	hub := NewHub(log.New(io.Discard, "", 0))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Notify(domain.Notification{JobID: "j"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked without a running hub")
	}
}
