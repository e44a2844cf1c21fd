package ws

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func createTestConnection() *Connection {
	return newConnection(nil, nil, "conn-test", "10.0.0.1", zap.NewNop())
}

func TestConnection_SendMarshalsAndEnqueues(t *testing.T) {
	c := createTestConnection()

	if err := c.Send(map[string]string{"type": "system", "message": "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case data := <-c.send:
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if m["message"] != "hi" {
			t.Errorf("expected message 'hi', got %q", m["message"])
		}
	default:
		t.Fatal("expected a frame on the send buffer")
	}
}

func TestConnection_SendDropsOnFullBuffer(t *testing.T) {
	c := newConnection(nil, nil, "conn-test", "10.0.0.1", zap.NewNop())
	c.send = make(chan []byte, 1)

	if err := c.Send(map[string]string{"n": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Send(map[string]string{"n": "2"}); err != nil {
		t.Fatalf("unexpected error on dropped send: %v", err)
	}

	select {
	case <-c.send:
	default:
		t.Fatal("expected the first frame to still be buffered")
	}
	select {
	case <-c.send:
		t.Fatal("expected the second frame to have been dropped, not buffered")
	default:
	}
}

func TestConnection_CheckAliveAndResetRoundTrip(t *testing.T) {
	c := createTestConnection()

	// newConnection starts alive (the accept itself counts as activity).
	if !c.checkAliveAndReset() {
		t.Fatal("expected a freshly accepted connection to be alive")
	}

	// checkAliveAndReset clears the flag; without an intervening
	// markAlive, the next heartbeat round should find it not-alive.
	if c.checkAliveAndReset() {
		t.Fatal("expected the alive flag to have been cleared by the previous check")
	}

	c.markAlive()
	if !c.checkAliveAndReset() {
		t.Fatal("expected markAlive to set the flag back for the next round")
	}
}

func TestConnection_RequestPingIsNonBlocking(t *testing.T) {
	c := createTestConnection()

	// The ping channel has capacity 1; a second request before the first
	// is drained must not block the caller.
	c.requestPing()
	c.requestPing()

	select {
	case <-c.ping:
	default:
		t.Fatal("expected a pending ping request")
	}
	select {
	case <-c.ping:
		t.Fatal("expected only one ping request to be queued")
	default:
	}
}

func TestConnection_CloseSendUnblocksWritePumpSelect(t *testing.T) {
	c := createTestConnection()
	c.closeSend()

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected the send channel to be closed")
		}
	default:
		t.Fatal("expected a closed channel to be immediately readable")
	}
}
