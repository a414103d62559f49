package mq

import "testing"

// --- ControlMessage Tests ---

func TestControlMessage_AddressedTo_Broadcast(t *testing.T) {
	msg := &ControlMessage{Command: ControlShutdown}

	if !msg.AddressedTo("conveyor@a") || !msg.AddressedTo("conveyor@b") {
		t.Error("message without destination must be addressed to everyone")
	}
}

func TestControlMessage_AddressedTo_Targeted(t *testing.T) {
	msg := &ControlMessage{
		Command:     ControlShutdown,
		Destination: []string{"conveyor@a", "conveyor@b"},
	}

	if !msg.AddressedTo("conveyor@a") {
		t.Error("listed identity must be addressed")
	}
	if msg.AddressedTo("conveyor@c") {
		t.Error("unlisted identity must not be addressed")
	}
}
