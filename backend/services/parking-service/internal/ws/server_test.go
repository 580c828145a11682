package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type echoProcessor struct{}

func (echoProcessor) Process(_ context.Context, deviceID string, raw []byte) ([]byte, error) {
	if string(raw) == "ignore" {
		return nil, errors.New("unparseable")
	}
	return []byte(deviceID + ":" + string(raw)), nil
}

func startGateway(t *testing.T) (*Manager, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	manager := NewManager()
	srv := httptest.NewServer(NewServer(ctx, manager, echoProcessor{}, time.Second, time.Second, zap.NewNop()))
	t.Cleanup(srv.Close)
	return manager, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestDeviceIDRequired(t *testing.T) {
	_, url := startGateway(t)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFramesAreProcessedAndAnswered(t *testing.T) {
	manager, url := startGateway(t)
	conn := dial(t, url+"?device_id=gate-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ignore")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	assert.Equal(t, "gate-1:hello", readText(t, conn))

	assert.Eventually(t, func() bool { return manager.Count() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, manager.Send("gate-1", []byte("push")))
	assert.Equal(t, "push", readText(t, conn))
	assert.False(t, manager.Send("gate-2", []byte("push")))
}

func TestReconnectReplacesConnection(t *testing.T) {
	manager, url := startGateway(t)
	first := dial(t, url+"?device_id=board-1")
	second := dial(t, url+"?device_id=board-1")

	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte("x")))
	assert.Equal(t, "board-1:x", readText(t, second))

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "replaced connection must be closed")
	assert.Equal(t, 1, manager.Count())
}

func TestDisconnectRemovesDevice(t *testing.T) {
	manager, url := startGateway(t)
	conn := dial(t, url+"?device_id=gate-9")
	assert.Eventually(t, func() bool { return manager.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return manager.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesEveryDevice(t *testing.T) {
	manager, url := startGateway(t)
	assert.Zero(t, manager.Broadcast([]byte("nobody")))

	entry := dial(t, url+"?device_id=gate-entry")
	exit := dial(t, url+"?device_id=gate-exit")
	assert.Eventually(t, func() bool { return manager.Count() == 2 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, manager.Broadcast([]byte("open")))
	assert.Equal(t, "open", readText(t, entry))
	assert.Equal(t, "open", readText(t, exit))
}
