package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/taskproc"
)

// NewWorkerCmd создаёт группу команд для управления воркерами.
func NewWorkerCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Inspect and control workers",
	}

	cmd.AddCommand(
		newWorkerHealthCmd(rt, outputFn),
		newWorkerStatsCmd(rt, outputFn),
		newWorkerShutdownCmd(rt, outputFn),
	)

	return cmd
}

func newWorkerHealthCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping live workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			adapter, err := rt.Adapter(cmd.Context())
			if err != nil {
				return err
			}

			statuses, err := adapter.HealthCheck(cmd.Context())
			if err != nil {
				return err
			}

			renderWorkerHealth(out, statuses)
			return nil
		},
	}
}

func renderWorkerHealth(out *Output, statuses []taskproc.HealthStatus) {
	if len(statuses) == 0 {
		out.Success("No workers responded")
		return
	}

	headers := []string{"WORKER_ID", "STATUS"}
	rows := make([][]string, len(statuses))
	for i, s := range statuses {
		rows[i] = []string{s.Identity, s.Status}
	}

	out.Print(headers, rows, statuses)
}

func newWorkerStatsCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Collect operational counters from workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			adapter, err := rt.Adapter(cmd.Context())
			if err != nil {
				return err
			}

			metrics, err := adapter.GetMetrics(cmd.Context())
			if err != nil {
				return err
			}

			if len(metrics) == 0 {
				out.Success("No workers responded")
				return nil
			}

			// Схема счётчиков определяется воркером, выводим JSON
			out.JSON(metrics)
			return nil
		},
	}
}

func newWorkerShutdownCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Broadcast shutdown to all workers on the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			adapter, err := rt.Adapter(cmd.Context())
			if err != nil {
				return err
			}

			if err := adapter.Shutdown(cmd.Context()); err != nil {
				return err
			}

			out.Success("Shutdown signal broadcast to all workers")
			return nil
		},
	}
}
