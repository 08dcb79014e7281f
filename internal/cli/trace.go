package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/me/gokern/internal/trace"
	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded scheduling traces",
	}
	cmd.AddCommand(newTraceListCmd(), newTraceShowCmd())
	return cmd
}

func newTraceListCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := trace.NewReader(dbPath)
			if err != nil {
				return err
			}
			defer reader.Close()

			runs, err := reader.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tFINISHED\tEVENTS")
			for _, run := range runs {
				finished := run.FinishedAt
				if finished == "" {
					finished = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", run.ID, run.StartedAt, finished, run.Events)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "gokern.db", "Trace database path")
	return cmd
}

func newTraceShowCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the events of one run in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := trace.NewReader(dbPath)
			if err != nil {
				return err
			}
			defer reader.Close()

			events, err := reader.Events(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load events: %w", err)
			}
			if len(events) == 0 {
				return fmt.Errorf("no events for run %s", args[0])
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tPID\tDETAIL")
			for _, ev := range events {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", ev.Seq, ev.Time, ev.Type, uint64(ev.Pid), ev.Detail)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "gokern.db", "Trace database path")
	return cmd
}
