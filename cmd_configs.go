package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Seednode/electricmaze/maze"
	"github.com/Seednode/electricmaze/store"
)

func newConfigsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage saved maze configurations.",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved maze configurations, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), cfg.database)
			if err != nil {
				return err
			}
			defer st.Close()

			configs, err := st.Configs(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tPATH\tELECTRIC\tSAVED")
			for _, c := range configs {
				fmt.Fprintf(tw, "%s\t%dx%d\t%d\t%d\t%s\n",
					c.Name,
					c.Grid.Rows(), c.Grid.Cols(),
					c.Grid.Count(maze.Path),
					c.Grid.Count(maze.Electric),
					humanize.Time(c.CreatedAt),
				)
			}

			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved maze configuration.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), cfg.database)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteConfig(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])

			return nil
		},
	})

	return cmd
}
