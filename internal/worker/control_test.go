package worker

import (
	"context"
	"testing"

	"github.com/shaiso/Conveyor/internal/mq"
)

// --- Control Tests ---

func TestWorker_HandleControl_Ping(t *testing.T) {
	w := testWorker(newFakeResultStore(), NewRegistry(), 3)

	reply := w.handleControl(&mq.ControlMessage{Command: mq.ControlPing})
	if reply == nil {
		t.Fatal("ping must be answered")
	}
	if reply.Identity != "conveyor@test" {
		t.Errorf("expected worker identity in reply, got %q", reply.Identity)
	}
	if reply.Payload["ok"] != "pong" {
		t.Errorf("expected pong, got %v", reply.Payload)
	}
}

func TestWorker_HandleControl_Stats(t *testing.T) {
	registry := NewRegistry()
	registry.Register("add", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, nil
	})

	w := testWorker(newFakeResultStore(), registry, 3)

	reply := w.handleControl(&mq.ControlMessage{Command: mq.ControlStats})
	if reply == nil {
		t.Fatal("stats must be answered")
	}
	if reply.Payload["queue"] != "test" {
		t.Errorf("expected queue in stats, got %v", reply.Payload["queue"])
	}
	if _, ok := reply.Payload["processed"]; !ok {
		t.Error("expected processed counter in stats")
	}
}

func TestWorker_HandleControl_ShutdownNoReply(t *testing.T) {
	w := testWorker(newFakeResultStore(), NewRegistry(), 3)

	if reply := w.handleControl(&mq.ControlMessage{Command: mq.ControlShutdown}); reply != nil {
		t.Error("shutdown must not be answered")
	}
}

func TestWorker_HandleControl_UnknownCommand(t *testing.T) {
	w := testWorker(newFakeResultStore(), NewRegistry(), 3)

	if reply := w.handleControl(&mq.ControlMessage{Command: "restart"}); reply != nil {
		t.Error("unknown command must be ignored")
	}
}
