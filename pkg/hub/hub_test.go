package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-roomba/pkg/protocol"
	"github.com/teslashibe/go-roomba/pkg/robot"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	return h, cancel
}

func attach(h *Hub) *Client {
	c := newClient(h, nil)
	h.register <- c
	return c
}

func TestHub_PublishReachesClients(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	c := attach(h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	report := robot.StatusReport{Robot: robot.Identity{Type: robot.Ground, ID: 2}, Namespace: "ground_2", Tick: 9}
	require.NoError(t, h.Publish(report))

	select {
	case msg := <-c.send:
		assert.Equal(t, JSONMessage, msg.Type)
		parsed, err := protocol.ParseMessage(msg.Data)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeState, parsed.Type)
		assert.Equal(t, "ground_2", parsed.Robot)
	case <-time.After(time.Second):
		t.Fatal("client did not receive the report")
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	c := attach(h)
	h.unregister <- c

	_, ok := <-c.send
	assert.False(t, ok, "send channel should be closed")
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	c := attach(h)
	for i := 0; i < cap(c.send); i++ {
		c.send <- NewJSONMessage([]byte("{}"))
	}

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	h := New("idle", nil)
	assert.NoError(t, h.Publish(robot.StatusReport{}))
	assert.Empty(t, h.broadcast)
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := attach(h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()

	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client send channel not closed on shutdown")
	}
	assert.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, time.Millisecond)
}
