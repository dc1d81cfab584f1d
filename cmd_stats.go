package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Seednode/electricmaze/store"
)

func when(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

func printReport(w io.Writer, r store.Report) {
	st := r.Stats

	fmt.Fprintf(w, "Health score:           %d%%\n", r.HealthScore)
	fmt.Fprintf(w, "Disconnects:            %d (last %s)\n", st.TotalDisconnects, when(st.LastDisconnect))
	fmt.Fprintf(w, "Reconnect attempts:     %d\n", st.TotalReconnectAttempts)
	fmt.Fprintf(w, "Successful reconnects:  %d (last %s)\n", st.SuccessfulReconnects, when(st.LastReconnect))
	fmt.Fprintf(w, "Failed reconnects:      %d\n", st.FailedReconnects)
	fmt.Fprintf(w, "Average reconnect time: %s\n", st.AverageReconnectTime.Round(time.Millisecond))
	fmt.Fprintf(w, "Events retained:        %d of %d\n", len(r.Events), store.MaxEvents)
}

func newStatsCmd(cfg *Config) *cobra.Command {
	var clearHistory bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show connection history statistics and a health score.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), cfg.database)
			if err != nil {
				return err
			}
			defer st.Close()

			if clearHistory {
				if err := st.ClearEvents(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "connection history cleared")

				return nil
			}

			report, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report)

			return nil
		},
	}

	cmd.Flags().BoolVar(&clearHistory, "clear", false, "delete the stored connection history")

	return cmd
}
