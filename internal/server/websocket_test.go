package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	Type    string          `json:"type"`
	State   string          `json:"state"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Levels  json.RawMessage `json:"levels"`
}

func dialLevels(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/levels"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_StatusCommandsAndEvents(t *testing.T) {
	srv, host := newTestServer(t, testConfig(t))
	detach := srv.hub.Attach(srv.service)
	defer detach()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialLevels(t, ts)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, "IDLE", first.State)

	require.NoError(t, conn.WriteJSON(WSCommand{Type: "record"}))

	var gotResult, gotState, gotLevels bool
	for !(gotResult && gotState && gotLevels) {
		msg := readMessage(t, conn)
		switch msg.Type {
		case "record_result":
			assert.True(t, msg.Success, msg.Error)
			assert.Equal(t, "RECORDING", msg.State)
			gotResult = true
			pushTone(t, host, 200)
		case "state":
			assert.Equal(t, "IDLE", msg.From)
			assert.Equal(t, "RECORDING", msg.To)
			gotState = true
		case "levels":
			var levels LevelsResponse
			require.NoError(t, json.Unmarshal(msg.Levels, &levels))
			if levels.Percent > 0 {
				gotLevels = true
			}
		}
	}

	require.NoError(t, conn.WriteJSON(WSCommand{Type: "jump"}))
	for {
		msg := readMessage(t, conn)
		if msg.Type == "jump_result" {
			assert.False(t, msg.Success)
			assert.Contains(t, msg.Error, "unknown command")
			break
		}
	}

	require.NoError(t, conn.WriteJSON(WSCommand{Type: "stop"}))
	require.NoError(t, conn.WriteJSON(WSCommand{Type: "save", Data: json.RawMessage(`{"name":"a/b"}`)}))
	for {
		msg := readMessage(t, conn)
		if msg.Type == "save_result" {
			assert.False(t, msg.Success)
			assert.Equal(t, "name must not contain path separators", msg.Error)
			assert.Equal(t, "STOPPED", msg.State)
			break
		}
	}

	conn.Close()
	assert.Eventually(t, func() bool { return srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_CloseAllDisconnects(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialLevels(t, ts)
	defer conn.Close()
	assert.Equal(t, "status", readMessage(t, conn).Type)
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	srv.hub.CloseAll()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// A closed hub refuses new clients
	late := dialLevels(t, ts)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := late.ReadMessage()
	assert.Error(t, err)
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	h := NewHub()
	c := &client{events: make(chan any, 1)}
	require.True(t, h.add(c))

	h.Broadcast("one")
	h.Broadcast("two")

	assert.Equal(t, "one", <-c.events)
	select {
	case msg := <-c.events:
		t.Fatalf("unexpected message %v", msg)
	default:
	}
}

func TestCheckOrigin(t *testing.T) {
	cases := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://localhost:3000", "example.com", true},
		{"http://127.0.0.1", "example.com", true},
		{"http://recorder.local", "recorder.local:8080", true},
		{"http://192.168.1.20", "example.com", true},
		{"http://evil.example", "recorder.local:8080", false},
		{"://bad", "example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/levels", nil)
			r.Host = tc.host
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.want, checkOrigin(r))
		})
	}
}
