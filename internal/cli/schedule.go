package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/scheduler"
)

// NewScheduleCmd создаёт группу команд для управления расписаниями.
func NewScheduleCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage periodic task schedules",
	}

	cmd.AddCommand(
		newScheduleAddCmd(rt, outputFn),
		newScheduleListCmd(rt, outputFn),
		newScheduleShowCmd(rt, outputFn),
		newScheduleEnableCmd(rt, outputFn),
		newScheduleDisableCmd(rt, outputFn),
		newScheduleDeleteCmd(rt, outputFn),
	)

	return cmd
}

func newScheduleAddCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	var name string
	var cronExpr string
	var intervalSec int
	var timezone string
	var rawArgs []string
	var rawKwargs []string

	cmd := &cobra.Command{
		Use:   "add TASK_NAME",
		Short: "Create a periodic schedule for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if (cronExpr == "") == (intervalSec <= 0) {
				return fmt.Errorf("exactly one of --cron or --interval must be set")
			}
			if cronExpr != "" {
				if err := scheduler.ValidateCronExpr(cronExpr); err != nil {
					return err
				}
			}

			kwargs, err := parseKwargValues(rawKwargs)
			if err != nil {
				return err
			}

			sched := &domain.Schedule{
				ID:          uuid.New(),
				Name:        name,
				TaskName:    args[0],
				Args:        parseArgValues(rawArgs),
				Kwargs:      kwargs,
				CronExpr:    cronExpr,
				IntervalSec: intervalSec,
				Timezone:    timezone,
				Enabled:     true,
				CreatedAt:   time.Now().UTC(),
			}

			nextDue, err := scheduler.CalculateInitialNextDue(sched)
			if err != nil {
				return err
			}
			sched.NextDueAt = nextDue

			schedules, err := rt.Schedules(cmd.Context())
			if err != nil {
				return err
			}

			if err := schedules.Create(cmd.Context(), sched); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule created: %s", sched.ID))
			out.Print(scheduleHeaders, [][]string{scheduleRow(sched)}, sched)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Schedule name (required)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (e.g. '0 * * * *')")
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Interval in seconds")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Timezone for cron evaluation (IANA name)")
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "Positional argument, parsed as JSON when possible (repeatable)")
	cmd.Flags().StringArrayVar(&rawKwargs, "kwarg", nil, "Keyword argument as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newScheduleListCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			schedules, err := rt.Schedules(cmd.Context())
			if err != nil {
				return err
			}

			list, err := schedules.List(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, len(list))
			for i := range list {
				rows[i] = scheduleRow(&list[i])
			}

			out.Print(scheduleHeaders, rows, list)
			return nil
		},
	}
}

func newScheduleShowCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid schedule ID %q: %w", args[0], err)
			}

			schedules, err := rt.Schedules(cmd.Context())
			if err != nil {
				return err
			}

			sched, err := schedules.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			out.Print(scheduleHeaders, [][]string{scheduleRow(sched)}, sched)
			return nil
		},
	}
}

func newScheduleEnableCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return newScheduleToggleCmd(rt, outputFn, "enable", "Enable a schedule", true)
}

func newScheduleDisableCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return newScheduleToggleCmd(rt, outputFn, "disable", "Disable a schedule", false)
}

func newScheduleToggleCmd(rt *Runtime, outputFn func() *Output, verb, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid schedule ID %q: %w", args[0], err)
			}

			schedules, err := rt.Schedules(cmd.Context())
			if err != nil {
				return err
			}

			if err := schedules.SetEnabled(cmd.Context(), id, enabled); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule %sd: %s", verb, id))
			return nil
		},
	}
}

func newScheduleDeleteCmd(rt *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid schedule ID %q: %w", args[0], err)
			}

			schedules, err := rt.Schedules(cmd.Context())
			if err != nil {
				return err
			}

			if err := schedules.Delete(cmd.Context(), id); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule deleted: %s", id))
			return nil
		},
	}
}

var scheduleHeaders = []string{"ID", "NAME", "TASK", "CRON", "INTERVAL", "TZ", "ENABLED", "NEXT_DUE"}

func scheduleRow(s *domain.Schedule) []string {
	interval := ""
	if s.IntervalSec > 0 {
		interval = strconv.Itoa(s.IntervalSec) + "s"
	}
	return []string{
		s.ID.String(),
		s.Name,
		s.TaskName,
		s.CronExpr,
		interval,
		s.Timezone,
		strconv.FormatBool(s.Enabled),
		s.NextDueAt.Format(time.RFC3339),
	}
}
