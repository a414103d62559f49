package worker

import (
	"time"

	"github.com/shaiso/Conveyor/internal/mq"
)

// handleControl обрабатывает управляющее сообщение, адресованное воркеру.
//
// ping и stats отвечают через reply-очередь; shutdown инициирует
// остановку воркера и ответа не требует.
func (w *Worker) handleControl(msg *mq.ControlMessage) *mq.ControlReply {
	switch msg.Command {
	case mq.ControlPing:
		return &mq.ControlReply{
			Identity: w.identity,
			Command:  msg.Command,
			Payload:  map[string]any{"ok": "pong"},
		}

	case mq.ControlStats:
		payload := w.stats.snapshot()
		payload["queue"] = w.queue
		payload["concurrency"] = w.concurrency
		payload["uptime_sec"] = int64(time.Since(w.startedAt).Seconds())
		payload["registered_tasks"] = w.registry.Names()

		return &mq.ControlReply{
			Identity: w.identity,
			Command:  msg.Command,
			Payload:  payload,
		}

	case mq.ControlShutdown:
		w.logger.Info("received shutdown control message", "message_id", msg.ID)
		w.Stop()
		return nil

	default:
		w.logger.Warn("unknown control command", "command", msg.Command)
		return nil
	}
}
