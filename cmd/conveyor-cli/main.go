// Conveyor CLI — инструмент командной строки для управления task'ами,
// воркерами и расписаниями.
//
// Использование:
//
//	conveyor [--broker-url URL] [--db-url DSN] [--queue NAME] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task      Управление task'ами
//	worker    Опрос и управление воркерами
//	schedule  Управление расписаниями
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt := &cli.Runtime{}
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — task processing tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&rt.BrokerURL, "broker-url", mq.DefaultURL(), "AMQP broker URL")
	rootCmd.PersistentFlags().StringVar(&rt.DBURL, "db-url", repo.DefaultDSN(), "Result store DSN")
	rootCmd.PersistentFlags().StringVar(&rt.Queue, "queue", "conveyor", "Task queue name")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(rt, outputFn),
		cli.NewWorkerCmd(rt, outputFn),
		cli.NewScheduleCmd(rt, outputFn),
	)

	err := rootCmd.ExecuteContext(ctx)
	rt.Close(context.Background())

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
