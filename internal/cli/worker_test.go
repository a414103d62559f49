package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/taskproc"
)

// --- Worker command Tests ---

func testOutput(jsonMode bool) (*Output, *bytes.Buffer, *bytes.Buffer) {
	w := &bytes.Buffer{}
	errW := &bytes.Buffer{}
	return &Output{jsonMode: jsonMode, w: w, errW: errW}, w, errW
}

func TestRenderWorkerHealth_NoWorkers(t *testing.T) {
	out, w, errW := testOutput(false)

	renderWorkerHealth(out, nil)

	if !strings.Contains(errW.String(), "No workers responded") {
		t.Errorf("expected message on stderr, got %q", errW.String())
	}
	// Пустая таблица после сообщения не выводится
	if w.Len() != 0 {
		t.Errorf("expected no table output, got %q", w.String())
	}
}

func TestRenderWorkerHealth_NoWorkersJSON(t *testing.T) {
	out, w, errW := testOutput(true)

	renderWorkerHealth(out, nil)

	if !strings.Contains(errW.String(), "No workers responded") {
		t.Errorf("expected message on stderr, got %q", errW.String())
	}
	if w.Len() != 0 {
		t.Errorf("expected no JSON output, got %q", w.String())
	}
}

func TestRenderWorkerHealth_Table(t *testing.T) {
	out, w, errW := testOutput(false)

	renderWorkerHealth(out, []taskproc.HealthStatus{
		{Identity: "conveyor@host1", Status: "pong"},
		{Identity: "conveyor@host2", Status: "pong"},
	})

	got := w.String()
	if !strings.Contains(got, "WORKER_ID") || !strings.Contains(got, "conveyor@host1") {
		t.Errorf("expected table with worker rows, got %q", got)
	}
	if errW.Len() != 0 {
		t.Errorf("expected no stderr message, got %q", errW.String())
	}
}
