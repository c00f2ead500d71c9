package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vr2osc/internal/osc"
)

// These tests drive the hub with clients that have no connection; only the
// frame queue and the gone channel are observed.

func newTestHub(t *testing.T, cfg HubConfig) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.DiscardHandler), cfg)
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func startHub(t *testing.T, hub *Hub) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for hub to stop")
		}
	})
	return cancel
}

func addClient(t *testing.T, hub *Hub, name string, buf int, prefixes ...string) *client {
	t.Helper()
	c := newClient(nil, name, prefixes, buf)
	require.True(t, hub.add(c))
	return c
}

func nextFrame(t *testing.T, c *client) bundleFrame {
	t.Helper()
	select {
	case raw := <-c.frames:
		var f bundleFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for frame on %s", c.remote)
		return bundleFrame{}
	}
}

func assertNoFrame(t *testing.T, c *client) {
	t.Helper()
	select {
	case raw := <-c.frames:
		t.Fatalf("%s got unexpected frame %s", c.remote, raw)
	case <-time.After(50 * time.Millisecond):
	}
}

type bundleFrame struct {
	Type string    `json:"type"`
	Ts   time.Time `json:"ts"`
	Data struct {
		Messages []messageData `json:"messages"`
	} `json:"data"`
}

func addresses(f bundleFrame) []string {
	var out []string
	for _, m := range f.Data.Messages {
		out = append(out, m.Address)
	}
	return out
}

var mixed = []osc.Message{
	{Address: "/mixer/master", Args: []osc.Value{osc.Float32(0.5)}},
	{Address: "/lights/dimmer", Args: []osc.Value{osc.Int32(200)}},
	{Address: "/mixer/mute", Args: []osc.Value{osc.Bool(true)}},
}

func TestHub_PublishEncodesBundleFrame(t *testing.T) {
	hub := newTestHub(t, HubConfig{})
	startHub(t, hub)
	c := addClient(t, hub, "c", 4)

	hub.Publish(mixed[:1])

	f := nextFrame(t, c)
	assert.Equal(t, "bundle", f.Type)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), f.Ts)
	require.Len(t, f.Data.Messages, 1)
	assert.Equal(t, "/mixer/master", f.Data.Messages[0].Address)
	require.Len(t, f.Data.Messages[0].Args, 1)
	assert.Equal(t, "f", f.Data.Messages[0].Args[0].Type)
	assert.EqualValues(t, 0.5, f.Data.Messages[0].Args[0].Value)
}

func TestHub_PrefixSubscriptions(t *testing.T) {
	hub := newTestHub(t, HubConfig{})
	startHub(t, hub)

	all := addClient(t, hub, "all", 4)
	mixer := addClient(t, hub, "mixer", 4, "/mixer")
	mixer2 := addClient(t, hub, "mixer2", 4, "/mixer")
	both := addClient(t, hub, "both", 4, "/lights", "/mixer/mute")
	none := addClient(t, hub, "none", 4, "/video")

	hub.Publish(mixed)

	assert.Equal(t, []string{"/mixer/master", "/lights/dimmer", "/mixer/mute"}, addresses(nextFrame(t, all)))
	assert.Equal(t, []string{"/mixer/master", "/mixer/mute"}, addresses(nextFrame(t, mixer)))
	assert.Equal(t, []string{"/mixer/master", "/mixer/mute"}, addresses(nextFrame(t, mixer2)))
	assert.Equal(t, []string{"/lights/dimmer", "/mixer/mute"}, addresses(nextFrame(t, both)))
	assertNoFrame(t, none)
}

func TestHub_PublishCopiesMessages(t *testing.T) {
	hub := newTestHub(t, HubConfig{})
	c := addClient(t, hub, "c", 4)

	msgs := []osc.Message{{Address: "/a"}}
	hub.Publish(msgs)
	msgs[0].Address = "/reused"

	startHub(t, hub)
	assert.Equal(t, []string{"/a"}, addresses(nextFrame(t, c)))
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := newTestHub(t, HubConfig{})
	startHub(t, hub)

	slow := addClient(t, hub, "slow", 1)
	fast := addClient(t, hub, "fast", 8)
	slow.frames <- []byte(`"already queued"`)

	hub.Publish(mixed)

	assert.Len(t, nextFrame(t, fast).Data.Messages, 3)
	select {
	case <-slow.gone:
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_PublishWithoutClientsOrWhenFull(t *testing.T) {
	hub := newTestHub(t, HubConfig{QueueLen: 1})

	hub.Publish(mixed)
	assert.Zero(t, len(hub.batches), "nothing queued without clients")

	addClient(t, hub, "c", 1)
	hub.Publish(mixed)
	hub.Publish(mixed)
	assert.Equal(t, 1, len(hub.batches), "second bundle dropped, not blocked on")
}

func TestHub_RemoveAfterStopNeverBlocks(t *testing.T) {
	hub := newTestHub(t, HubConfig{})
	cancel := startHub(t, hub)

	clients := make([]*client, 100)
	for i := range clients {
		clients[i] = addClient(t, hub, "c", 1)
	}
	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, c := range clients {
			hub.remove(c, "closed")
			hub.remove(c, "closed")
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("remove blocked after the hub stopped")
	}

	for _, c := range clients {
		select {
		case <-c.gone:
		default:
			t.Fatal("client not dropped on shutdown")
		}
	}
	assert.False(t, hub.add(newClient(nil, "late", nil, 1)), "stopped hub refuses clients")
}

func TestClient_Wants(t *testing.T) {
	assert.True(t, newClient(nil, "", nil, 1).wants("/anything"))

	c := newClient(nil, "", []string{"/a/", "/b"}, 1)
	assert.True(t, c.wants("/a/x"))
	assert.True(t, c.wants("/bee"))
	assert.False(t, c.wants("/a"))
	assert.False(t, c.wants("/c"))
}
