package taskproc

import (
	"errors"
	"testing"
)

// --- Factory Tests ---

func TestNewAdapterForConfig_SelectsAMQP(t *testing.T) {
	adapter, err := newAdapterForConfig(validAMQPConfig(), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := adapter.(*AMQPAdapter); !ok {
		t.Fatalf("expected *AMQPAdapter, got %T", adapter)
	}
}

func TestNewAdapterForConfig_UnknownBackend(t *testing.T) {
	cfg := validAMQPConfig()
	cfg.Backend = BackendConfig{}

	_, err := newAdapterForConfig(cfg, testLogger())
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestNewAMQPAdapter_InvalidConfig(t *testing.T) {
	cfg := validAMQPConfig()
	cfg.QueueName = ""

	_, err := NewAMQPAdapter(cfg, testLogger())
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
