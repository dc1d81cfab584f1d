package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seednode/electricmaze/maze"
	"github.com/Seednode/electricmaze/relay"
	"github.com/Seednode/electricmaze/retry"
	"github.com/Seednode/electricmaze/store"
)

type request func(ctx context.Context, c *relay.Client) error

// position parses 1-indexed row and column arguments.
func position(row, col string) (int, int, error) {
	r, err := strconv.Atoi(row)
	if err != nil || r < 1 {
		return 0, 0, fmt.Errorf("invalid row %q", row)
	}
	c, err := strconv.Atoi(col)
	if err != nil || c < 1 {
		return 0, 0, fmt.Errorf("invalid column %q", col)
	}
	return r - 1, c - 1, nil
}

func squareRequest(args []string, intent maze.Intent) (request, error) {
	row, col, err := position(args[0], args[1])
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, c *relay.Client) error {
		return c.UpdateSquare(ctx, row, col, intent)
	}, nil
}

// parseRequest turns command line arguments into a relay request.
func parseRequest(args []string) (request, error) {
	if len(args) == 0 {
		return nil, errors.New("missing event")
	}

	event, args := args[0], args[1:]

	want := map[string]int{
		"add-team": 1, "remove-team": 1, "set-team": 1, "load": 1,
		"reveal": 2, "hide": 2, "deactivate": 2, "cycle": 2, "set-kind": 3,
		"reset": 0, "start-over": 0,
	}
	n, ok := want[event]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", event)
	}
	if len(args) != n {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", event, n, len(args))
	}

	switch event {
	case "add-team":
		return func(ctx context.Context, c *relay.Client) error { return c.AddTeam(ctx, args[0]) }, nil
	case "remove-team":
		return func(ctx context.Context, c *relay.Client) error { return c.RemoveTeam(ctx, args[0]) }, nil
	case "set-team":
		return func(ctx context.Context, c *relay.Client) error { return c.SetCurrentTeam(ctx, args[0]) }, nil
	case "load":
		return func(ctx context.Context, c *relay.Client) error { return c.LoadConfig(ctx, args[0]) }, nil
	case "reset":
		return func(ctx context.Context, c *relay.Client) error { return c.ResetMaze(ctx) }, nil
	case "start-over":
		return func(ctx context.Context, c *relay.Client) error { return c.StartOver(ctx) }, nil
	case "reveal":
		return squareRequest(args, maze.Intent{Action: maze.Reveal})
	case "hide":
		return squareRequest(args, maze.Intent{Action: maze.Hide})
	case "deactivate":
		return squareRequest(args, maze.Intent{Action: maze.Deactivate})
	case "cycle":
		return squareRequest(args, maze.Intent{Action: maze.Cycle})
	default:
		kind := maze.Kind(strings.ToLower(args[2]))
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q", maze.ErrInvalidKind, args[2])
		}
		return squareRequest(args[:2], maze.Intent{Action: maze.SetKind, Kind: kind})
	}
}

func newSendCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send EVENT [ARGS...]",
		Short: "Send one request to a running game, retrying until it is acknowledged.",
		Long: `Send one request to a running game, retrying until it is acknowledged.

Events:
  add-team NAME, remove-team NAME, set-team NAME
  reveal ROW COL, hide ROW COL, deactivate ROW COL, cycle ROW COL
  set-kind ROW COL path|electric|neutral
  reset, start-over, load NAME

Rows and columns count from 1.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.url == "" {
				return errors.New("--url is required")
			}
			if err := cfg.validatePolicies(); err != nil {
				return err
			}

			req, err := parseRequest(args)
			if err != nil {
				return err
			}

			st, err := store.Open(cmd.Context(), cfg.database)
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := relay.NewClient(cfg.url,
				relay.WithRequestPolicy(cfg.requestPolicy()),
				relay.WithReconnectPolicy(cfg.reconnectPolicy()),
				relay.WithEventSink(st),
				relay.WithClientLogger(logger(cfg)),
				relay.WithAttemptObserver(func(a retry.Attempt) {
					logf(cfg, "RELAY: %s attempt %d failed: %v", a.Operation, a.Number, a.Err)
				}),
			)
			if err != nil {
				return err
			}
			defer c.Close()

			c.OnStatus(func(s relay.Status) {
				logf(cfg, "RELAY: Connection %s", s.State)
			})

			if err := req(cmd.Context(), c); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s acknowledged\n", args[0])

			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.url, "url", "u", "", "websocket URL of the game, e.g. ws://localhost:8080/maze/GAMEID/ws (env: ELECTRICMAZE_URL)")
	bindFlags(v, fs)

	return cmd
}
