package main

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
)

// mockPinSink records pin writes and can be told to fail.
type mockPinSink struct {
	mu     sync.Mutex
	writes []PinLevels
	err    error
	closed bool
}

func (m *mockPinSink) WritePins(a, b int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes = append(m.writes, PinLevels{A: a, B: b})
	return nil
}

func (m *mockPinSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockPinSink) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *mockPinSink) lastWrite() PinLevels {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[len(m.writes)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRunEffect_WritePins(t *testing.T) {
	sink := &mockPinSink{}

	stop := runEffect(sink, CmdWritePins{A: 1, B: 0}, testLogger(), nil)
	if stop {
		t.Fatalf("pin write must not stop the daemon")
	}
	if sink.writeCount() != 1 {
		t.Fatalf("expected 1 write, got %d", sink.writeCount())
	}
	if sink.lastWrite() != (PinLevels{A: 1, B: 0}) {
		t.Fatalf("expected write 1/0, got %+v", sink.lastWrite())
	}
}

// TestRunEffect_WritePins_FailureObserved: a failed write emits a
// SinkWriteFailed observation and does not stop the daemon.
func TestRunEffect_WritePins_FailureObserved(t *testing.T) {
	wantErr := errors.New("gpio gone")
	sink := &mockPinSink{err: wantErr}

	var observed []Event
	stop := runEffect(sink, CmdWritePins{A: 0, B: 1}, testLogger(), func(e Event) {
		observed = append(observed, e)
	})

	if stop {
		t.Fatalf("write failure must not stop the daemon")
	}
	if len(observed) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(observed))
	}
	obs, ok := observed[0].(SinkWriteFailed)
	if !ok {
		t.Fatalf("expected SinkWriteFailed, got %T", observed[0])
	}
	if !errors.Is(obs.Err, wantErr) {
		t.Fatalf("expected wrapped write error, got %v", obs.Err)
	}
}

func TestRunEffect_PublishSnapshot(t *testing.T) {
	reply := make(chan StateSnapshot, 1)
	snap := StateSnapshot{TransitionCount: 42, RunState: RunRunning}

	runEffect(nil, CmdPublishSnapshot{Snapshot: snap, Reply: reply}, testLogger(), nil)

	select {
	case got := <-reply:
		if got.TransitionCount != 42 {
			t.Fatalf("expected snapshot transitions 42, got %d", got.TransitionCount)
		}
	default:
		t.Fatalf("expected snapshot delivered to reply channel")
	}
}

// TestRunEffect_PublishSnapshot_FullReplyDropped: an unready reply channel
// never blocks the daemon loop.
func TestRunEffect_PublishSnapshot_FullReplyDropped(t *testing.T) {
	reply := make(chan StateSnapshot) // unbuffered, no reader

	done := make(chan struct{})
	go func() {
		defer close(done)
		runEffect(nil, CmdPublishSnapshot{Snapshot: StateSnapshot{}, Reply: reply}, testLogger(), nil)
	}()

	<-done // must return promptly instead of blocking
}

func TestRunEffect_StopDaemon(t *testing.T) {
	if !runEffect(nil, CmdStopDaemon{}, testLogger(), nil) {
		t.Fatalf("expected stop=true for CmdStopDaemon")
	}
}
