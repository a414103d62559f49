package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/taskproc"
)

// NewTaskCmd создаёт группу команд для управления task'ами.
func NewTaskCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskEnqueueCmd(rt, outputFn),
		newTaskStatusCmd(rt, outputFn),
		newTaskCancelCmd(rt, outputFn),
	)

	return cmd
}

func newTaskEnqueueCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	var rawArgs []string
	var rawKwargs []string
	var countdown time.Duration
	var taskID string

	cmd := &cobra.Command{
		Use:   "enqueue TASK_NAME",
		Short: "Enqueue a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			adapter, err := rt.Adapter(cmd.Context())
			if err != nil {
				return err
			}

			kwargs, err := parseKwargValues(rawKwargs)
			if err != nil {
				return err
			}

			opts := &taskproc.EnqueueOptions{
				Countdown: countdown,
				TaskID:    taskID,
			}

			result, err := adapter.EnqueueTask(cmd.Context(), args[0], parseArgValues(rawArgs), kwargs, opts)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task enqueued: %s", result.ID))
			out.Print(taskHeaders, [][]string{taskRow(result)}, result)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "Positional argument, parsed as JSON when possible (repeatable)")
	cmd.Flags().StringArrayVar(&rawKwargs, "kwarg", nil, "Keyword argument as KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&countdown, "countdown", 0, "Delay before the task becomes eligible to run")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Explicit task ID (UUID); repeated enqueue with the same ID is deduplicated")

	return cmd
}

func newTaskStatusCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show current task status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			adapter, err := rt.Adapter(cmd.Context())
			if err != nil {
				return err
			}

			result, err := adapter.GetTaskStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Print(taskHeaders, [][]string{taskRow(result)}, result)
			return nil
		},
	}
}

func newTaskCancelCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Cancel a task that has not started yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			adapter, err := rt.Adapter(cmd.Context())
			if err != nil {
				return err
			}

			cancelled, err := adapter.CancelTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cancelled {
				out.Success(fmt.Sprintf("Task cancelled: %s", args[0]))
			} else {
				out.Success(fmt.Sprintf("Task not cancelled (already running or finished): %s", args[0]))
			}
			return nil
		},
	}
}

var taskHeaders = []string{"ID", "STATUS", "ATTEMPT", "ERROR", "CREATED", "FINISHED"}

func taskRow(r *domain.TaskResult) []string {
	finished := ""
	if r.FinishedAt != nil {
		finished = r.FinishedAt.Format(time.RFC3339)
	}
	return []string{
		r.ID,
		r.Status.String(),
		strconv.Itoa(r.Attempt),
		r.Error,
		r.CreatedAt.Format(time.RFC3339),
		finished,
	}
}
