package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:   "test-client",
		hub:  hub,
		send: make(chan []byte, 16),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 2*time.Millisecond)
}

func TestRegisterUnregister(t *testing.T) {
	hub := newTestHub(t)
	client := newTestClient(hub)

	hub.Register(client)
	waitFor(t, func() bool { return hub.GetTotalConnections() == 1 })

	hub.Unregister(client)
	waitFor(t, func() bool { return hub.GetTotalConnections() == 0 })

	_, open := <-client.send
	assert.False(t, open, "unregister closes the send channel")
}

func TestBroadcastStateFansOut(t *testing.T) {
	hub := newTestHub(t)
	everyone := newTestClient(hub)
	maimaiFan := newTestClient(hub)

	hub.Register(everyone)
	hub.Register(maimaiFan)
	hub.Subscribe(maimaiFan, "Maimai")
	waitFor(t, func() bool { return hub.GetSubscriberCount("Maimai") == 1 })

	st := domain.NewState([]string{"Maimai", "Chunithm"})
	st.Machines["Maimai"].Holder = "alice"
	st.Machines["Maimai"].Phase = domain.PhaseAwaitingAccept
	snap := domain.SnapshotOf(st, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	hub.BroadcastState(snap)

	// Everyone gets the state-changed ping.
	msg := receive(t, everyone)
	assert.Equal(t, MessageTypeStateChanged, msg.Type)
	assert.Equal(t, snap.TakenAt, msg.Timestamp)

	msg = receive(t, maimaiFan)
	assert.Equal(t, MessageTypeStateChanged, msg.Type)

	// Only the subscriber gets the per-machine update.
	msg = receive(t, maimaiFan)
	assert.Equal(t, MessageTypeMachineUpdate, msg.Type)
	assert.Equal(t, "Maimai", msg.Machine)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var m domain.Machine
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "alice", m.Holder)

	select {
	case data := <-everyone.send:
		t.Fatalf("unsubscribed client received machine update: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsMachineUpdates(t *testing.T) {
	hub := newTestHub(t)
	client := newTestClient(hub)

	hub.Register(client)
	hub.Subscribe(client, "Maimai")
	waitFor(t, func() bool { return hub.GetSubscriberCount("Maimai") == 1 })

	hub.Unsubscribe(client, "Maimai")
	waitFor(t, func() bool { return hub.GetSubscriberCount("Maimai") == 0 })
}

func TestSlowClientDoesNotBlockBroadcast(t *testing.T) {
	hub := newTestHub(t)
	slow := &Client{id: "slow", hub: hub, send: make(chan []byte)}
	fast := newTestClient(hub)

	hub.Register(slow)
	hub.Register(fast)
	waitFor(t, func() bool { return hub.GetTotalConnections() == 2 })

	// Nobody reads from slow.send; the hub must drop and move on.
	snap := domain.SnapshotOf(domain.NewState([]string{"Maimai"}), time.Now())
	hub.BroadcastState(snap)

	msg := receive(t, fast)
	assert.Equal(t, MessageTypeStateChanged, msg.Type)
}
