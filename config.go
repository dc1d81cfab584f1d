package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/electricmaze/maze"
	"github.com/Seednode/electricmaze/retry"
)

const maxGridSide = 64

type Config struct {
	bind           string
	cols           int
	database       string
	port           int
	prefix         string
	profile        bool
	rows           int
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	reconnectAttempts int
	requestTimeout    time.Duration
	retryAttempts     int
	retryBackoff      float64
	retryInitialDelay time.Duration
	retryMaxDelay     time.Duration

	url string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.rows < 1 || c.rows > maxGridSide || c.cols < 1 || c.cols > maxGridSide {
		return fmt.Errorf("invalid grid size (rows and columns must be between 1-%d inclusive): %dx%d", maxGridSide, c.rows, c.cols)
	}
	if c.database == "" {
		return errors.New("--database must not be empty")
	}
	return c.validatePolicies()
}

func (c *Config) validatePolicies() error {
	if err := c.requestPolicy().Validate(); err != nil {
		return fmt.Errorf("request %w", err)
	}
	if err := c.reconnectPolicy().Validate(); err != nil {
		return fmt.Errorf("reconnect %w", err)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) requestPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   c.retryAttempts,
		InitialDelay:  c.retryInitialDelay,
		MaxDelay:      c.retryMaxDelay,
		BackoffFactor: c.retryBackoff,
		Timeout:       c.requestTimeout,
	}
}

func (c *Config) reconnectPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   c.reconnectAttempts,
		InitialDelay:  c.retryInitialDelay,
		MaxDelay:      c.retryMaxDelay,
		BackoffFactor: c.retryBackoff,
	}
}

// bindFlags lets every flag in fs be set from an ELECTRICMAZE_* environment
// variable; flags given on the command line win.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ELECTRICMAZE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "electricmaze",
		Short:         "Hosts electric maze games, relaying every move to the players' browsers.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	pfs := cmd.PersistentFlags()

	pfs.StringVarP(&cfg.database, "database", "d", "electricmaze.db", "path to the sqlite database holding saved mazes and connection history (env: ELECTRICMAZE_DATABASE)")
	pfs.IntVar(&cfg.reconnectAttempts, "reconnect-attempts", 5, "reconnection attempts before a client gives up (env: ELECTRICMAZE_RECONNECT_ATTEMPTS)")
	pfs.DurationVar(&cfg.requestTimeout, "request-timeout", 5*time.Second, "time to wait for each request attempt to be acknowledged (env: ELECTRICMAZE_REQUEST_TIMEOUT)")
	pfs.IntVar(&cfg.retryAttempts, "retry-attempts", 3, "attempts per request before giving up (env: ELECTRICMAZE_RETRY_ATTEMPTS)")
	pfs.Float64Var(&cfg.retryBackoff, "retry-backoff", 2, "multiplier applied to the delay after each failed attempt (env: ELECTRICMAZE_RETRY_BACKOFF)")
	pfs.DurationVar(&cfg.retryInitialDelay, "retry-initial-delay", time.Second, "delay before the first retry (env: ELECTRICMAZE_RETRY_INITIAL_DELAY)")
	pfs.DurationVar(&cfg.retryMaxDelay, "retry-max-delay", 5*time.Second, "upper bound on the delay between retries (env: ELECTRICMAZE_RETRY_MAX_DELAY)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: ELECTRICMAZE_VERBOSE)")

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: ELECTRICMAZE_BIND)")
	fs.IntVar(&cfg.cols, "cols", maze.DefaultCols, "columns in each new maze (env: ELECTRICMAZE_COLS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: ELECTRICMAZE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: ELECTRICMAZE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: ELECTRICMAZE_PROFILE)")
	fs.IntVar(&cfg.rows, "rows", maze.DefaultRows, "rows in each new maze (env: ELECTRICMAZE_ROWS)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: ELECTRICMAZE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: ELECTRICMAZE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: ELECTRICMAZE_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: ELECTRICMAZE_VERSION)")

	bindFlags(v, pfs)
	bindFlags(v, fs)

	cmd.AddCommand(
		newValidateCmd(cfg, v),
		newConfigsCmd(cfg),
		newSendCmd(cfg, v),
		newStatsCmd(cfg),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("electricmaze v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
