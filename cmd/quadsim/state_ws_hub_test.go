package main

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

// NOTE: These tests focus on hub behavior (fanout + slow-client disconnection)
// without standing up a real websocket server. Clients are constructed with a
// nil websocket.Conn; the exercised paths never perform actual writes.

// newTestHub returns a hub with small buffers for deterministic tests.
func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(slog.Default(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, "client not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := &Client{hub: hub, send: make(chan []byte, 4), remoteAddr: "c1", logger: slog.Default()}
	c2 := &Client{hub: hub, send: make(chan []byte, 4), remoteAddr: "c2", logger: slog.Default()}

	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"tick","data":{"pin_a":1,"pin_b":0}}`)

	// Use the channel directly rather than BroadcastBytes: the latter is
	// intentionally non-blocking and may drop under scheduling pressure.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, string(got), string(msg))
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// sendBuf=1 so the slow client fills easily.
	hub := newTestHub(t, 1, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	slow := &Client{hub: hub, send: make(chan []byte, 1), remoteAddr: "slow", logger: slog.Default()}
	fast := &Client{hub: hub, send: make(chan []byte, 8), remoteAddr: "fast", logger: slog.Default()}

	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	// Pre-fill slow client buffer to simulate it being stuck.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"run_state_changed","data":{"run_state":"running"}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", string(got), string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// The slow client should be disconnected and its send channel closed.
	// Drain the pre-filled message first.
	select {
	case <-slow.send:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
}

func TestConvertBroadcast(t *testing.T) {
	at := time.Unix(2000, 0).UTC()

	ev, ok := convertBroadcast(BroadcastTick{PinA: 1, PinB: 1, TransitionCount: 7, TotalRevolutions: 0, TickAccum: 7, At: at})
	if !ok || ev.Type != "tick" {
		t.Fatalf("expected tick event, got %+v ok=%v", ev, ok)
	}
	tick, ok := ev.Data.(wsTickData)
	if !ok || tick.TransitionCount != 7 || tick.PinA != 1 {
		t.Fatalf("unexpected tick payload: %+v", ev.Data)
	}
	if !ev.At.Equal(at) {
		t.Fatalf("expected timestamp preserved")
	}

	ev, ok = convertBroadcast(BroadcastDirectionChanged{Direction: Backward})
	if !ok || ev.Type != "direction_changed" {
		t.Fatalf("expected direction_changed, got %+v", ev)
	}

	ev, ok = convertBroadcast(BroadcastRunStateChanged{RunState: RunHalted})
	if !ok || ev.Type != "run_state_changed" {
		t.Fatalf("expected run_state_changed, got %+v", ev)
	}
	if rs := ev.Data.(wsRunStateChangedData); rs.RunState != RunHalted {
		t.Fatalf("expected halted payload, got %+v", rs)
	}

	ev, ok = convertBroadcast(BroadcastConfigChanged{RefreshIntervalMS: 10, ToothCount: 25, Mode: ModeFreeRunning, RevPerSecond: 1.0})
	if !ok || ev.Type != "config_changed" {
		t.Fatalf("expected config_changed, got %+v", ev)
	}
	if cc := ev.Data.(wsConfigChangedData); cc.RevPerSecond != 1.0 {
		t.Fatalf("expected rev/s 1.0, got %v", cc.RevPerSecond)
	}
}

// TestRunBroadcaster_CoalescesTicks feeds a burst of ticks and checks that
// the hub sees far fewer frames than ticks, with the latest tick winning.
func TestRunBroadcaster_CoalescesTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 64, 256)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	c := &Client{hub: hub, send: make(chan []byte, 64), remoteAddr: "c", logger: slog.Default()}
	registerAndWait(t, hub, c)

	src := make(chan StateBroadcast, 256)
	bcastDone := make(chan struct{})
	go func() {
		defer close(bcastDone)
		RunBroadcaster(ctx, hub, src, slog.Default())
	}()

	// 50 ticks in a burst, well inside one coalescing window.
	for i := int32(1); i <= 50; i++ {
		src <- BroadcastTick{PinA: int(i % 2), TransitionCount: i, TickAccum: i}
	}

	// A non-tick event forces the pending tick out.
	src <- BroadcastRunStateChanged{RunState: RunPaused}

	var frames [][]byte
	deadline := time.After(time.Second)
collect:
	for {
		select {
		case msg := <-c.send:
			frames = append(frames, msg)
			if len(frames) >= 2 {
				break collect
			}
		case <-deadline:
			break collect
		}
	}

	if len(frames) < 2 {
		t.Fatalf("expected at least a tick frame and a run_state frame, got %d", len(frames))
	}
	if len(frames) > 10 {
		t.Fatalf("expected tick burst to be coalesced, got %d frames for 50 ticks", len(frames))
	}

	cancel()
	<-bcastDone
	<-hubDone
}
