package realtime

import (
	"testing"
	"time"
)

func TestHub_PublishDeliversToRoomMembers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{send: make(chan []byte, 1)}
	hub.register <- roomMembership{room: "gap-1", client: client}

	hub.Publish("gap-1", "gap:updated", map[string]string{"status": "Resolved"})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Fatal("expected a non-empty message")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestHub_PublishSkipsOtherRooms(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{send: make(chan []byte, 1)}
	hub.register <- roomMembership{room: "gap-1", client: client}

	hub.Publish("gap-2", "gap:updated", nil)

	select {
	case <-client.send:
		t.Fatal("client in gap-1 should not receive a gap-2 publish")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_UnregisterRemovesClientFromRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{send: make(chan []byte, 1)}
	hub.register <- roomMembership{room: "gap-1", client: client}
	hub.unregister <- roomMembership{room: "gap-1", client: client}

	// Give the run loop a moment to process unregistration.
	time.Sleep(50 * time.Millisecond)

	if n := hub.RoomCount("gap-1"); n != 0 {
		t.Fatalf("expected room to be empty after unregister, got %d members", n)
	}
}

func TestGapRoom_Format(t *testing.T) {
	if got := gapRoom(42); got != "gap-42" {
		t.Fatalf("expected gap-42, got %s", got)
	}
}
