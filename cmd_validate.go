package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seednode/electricmaze/maze"
	"github.com/Seednode/electricmaze/store"
)

var errInvalidMaze = errors.New("one or more mazes are invalid")

func printResult(w io.Writer, f mazeFile, res maze.Result) {
	if res.Valid {
		fmt.Fprintf(w, "%s: valid (%dx%d, %d path, %d electric)\n",
			f.Name, f.Grid.Rows(), f.Grid.Cols(), f.Grid.Count(maze.Path), f.Grid.Count(maze.Electric))

		return
	}

	fmt.Fprintf(w, "%s: %s\n", f.Name, res.Error)
}

func newValidateCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var save string

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check maze configurations and optionally save one for later games.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if save != "" && len(args) != 1 {
				return errors.New("--save takes exactly one file")
			}

			out := cmd.OutOrStdout()

			var files []mazeFile
			invalid := false
			for _, path := range args {
				f, err := readMazeFile(path)
				if err != nil {
					return err
				}

				res := maze.Validate(f.Grid)
				printResult(out, f, res)
				if !res.Valid {
					invalid = true
				}
				files = append(files, f)
			}

			if invalid {
				return errInvalidMaze
			}

			if save == "" {
				return nil
			}

			st, err := store.Open(cmd.Context(), cfg.database)
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := st.SaveConfig(cmd.Context(), save, files[0].Grid)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "saved %q to %s\n", c.Name, cfg.database)

			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&save, "save", "", "name to save the configuration under when it is valid (env: ELECTRICMAZE_SAVE)")
	bindFlags(v, fs)

	return cmd
}
