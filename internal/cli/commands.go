package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"ledgerreports/internal/amqp"
	"ledgerreports/internal/app"
	"ledgerreports/internal/core"
	"ledgerreports/internal/services"
)

func newGenerateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Queue the balance, yearly and statement reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withService(func(svc *services.ReportService) error {
				id, err := svc.Generate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newStatusCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <requestId> [kind]",
		Short: "Show the status of a request, or of one of its kinds",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID := args[0]
			out := cmd.OutOrStdout()
			return e.withService(func(svc *services.ReportService) error {
				if len(args) == 2 {
					kind, err := core.ParseKind(args[1])
					if err != nil {
						fmt.Fprintln(out, core.NotFoundText)
						return nil
					}
					status, err := svc.Status(cmd.Context(), requestID, kind)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, status)
					return nil
				}

				statuses, err := svc.StatusAll(cmd.Context(), requestID)
				if err != nil {
					return err
				}
				for _, k := range core.AllKinds() {
					fmt.Fprintf(out, "%-14s %s\n", k.FileName(), statuses[k.FileName()])
				}
				return nil
			})
		},
	}
}

func newRequeueCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <requestId> <kind>",
		Short: "Send an errored report back to pending",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseKind(args[1])
			if err != nil {
				return err
			}
			return e.withService(func(svc *services.ReportService) error {
				if err := svc.Requeue(cmd.Context(), args[0], kind); err != nil {
					if errors.Is(err, core.ErrInvalidTransition) {
						return fmt.Errorf("%s/%s is not in error status", args[0], kind)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s/%s\n", args[0], kind)
				return nil
			})
		},
	}
}

func newRunOnceCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run a single poll cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				if !a.Scheduler.RunCycle(cmd.Context()) {
					return errors.New("another cycle is in flight, try again later")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cycle complete")
				return nil
			})
		},
	}
}

func newStatsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count report requests per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withService(func(svc *services.ReportService) error {
				stats, err := svc.Stats(cmd.Context())
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(stats))
				for st := range stats {
					keys = append(keys, string(st))
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", k, stats[core.Status(k)])
				}
				return nil
			})
		},
	}
}

func newWatchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print report notifications as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}
			client, err := amqp.NewClient(e.cfg.AMQPURL, e.cfg.AMQPExchange, e.cfg.AMQPQueue)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err = client.ConsumeReportEvents(ctx, func(_ context.Context, msg *amqp.ReportFinishedMessage) error {
				_, err := fmt.Fprintln(out, formatEvent(msg))
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func formatEvent(msg *amqp.ReportFinishedMessage) string {
	line := fmt.Sprintf("%s %s/%s %s", msg.Timestamp.Format("2006-01-02T15:04:05Z07:00"), msg.RequestID, msg.Kind, msg.Status)
	switch {
	case msg.OutputLocation != "":
		line += fmt.Sprintf(" %dms %s", msg.DurationMs, msg.OutputLocation)
	case msg.ErrorMessage != "":
		line += " " + msg.ErrorMessage
	}
	return line
}
