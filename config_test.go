package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		port:              8080,
		rows:              8,
		cols:              8,
		database:          "electricmaze.db",
		reconnectAttempts: 5,
		requestTimeout:    5 * time.Second,
		retryAttempts:     3,
		retryBackoff:      2,
		retryInitialDelay: time.Second,
		retryMaxDelay:     5 * time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	for name, mutate := range map[string]func(*Config){
		"lone certificate": func(c *Config) { c.tlsCert = "cert.pem" },
		"port zero":        func(c *Config) { c.port = 0 },
		"port too large":   func(c *Config) { c.port = 70000 },
		"no rows":          func(c *Config) { c.rows = 0 },
		"too many columns": func(c *Config) { c.cols = maxGridSide + 1 },
		"no database":      func(c *Config) { c.database = "" },
		"no attempts":      func(c *Config) { c.retryAttempts = 0 },
		"no reconnects":    func(c *Config) { c.reconnectAttempts = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestConfigScheme(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "http", cfg.scheme())

	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"
	assert.Equal(t, "https", cfg.scheme())
}

func TestConfigPolicies(t *testing.T) {
	cfg := validConfig()

	req := cfg.requestPolicy()
	assert.Equal(t, 3, req.MaxAttempts)
	assert.Equal(t, 5*time.Second, req.Timeout)

	rec := cfg.reconnectPolicy()
	assert.Equal(t, 5, rec.MaxAttempts)
	assert.Equal(t, time.Second, rec.InitialDelay)
	assert.Zero(t, rec.Timeout)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newCmd(&Config{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cli.db")

	good := filepath.Join(dir, "straight.json")
	require.NoError(t, os.WriteFile(good, []byte(mustJSON(t, columnMaze(3))), 0o644))

	bad := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(bad, []byte(mustJSON(t, mazeFile{Grid: columnMaze(3)[:0]})), 0o644))

	out, err := execute(t, "validate", good, "--database", db)
	require.NoError(t, err)
	assert.Equal(t, "straight: valid (8x8, 8 path, 0 electric)\n", out)

	_, err = execute(t, "validate", good, bad, "--database", db)
	assert.ErrorIs(t, err, errInvalidMaze)

	_, err = execute(t, "validate", good, good, "--save", "twice", "--database", db)
	assert.ErrorContains(t, err, "exactly one file")

	out, err = execute(t, "validate", good, "--save", "straight", "--database", db)
	require.NoError(t, err)
	assert.Contains(t, out, `saved "straight"`)

	out, err = execute(t, "configs", "list", "--database", db)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "straight")
	assert.Contains(t, out, "8x8")

	out, err = execute(t, "stats", "--database", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Health score:           100%")
	assert.Contains(t, out, "last never")

	out, err = execute(t, "stats", "--clear", "--database", db)
	require.NoError(t, err)
	assert.Equal(t, "connection history cleared\n", out)

	_, err = execute(t, "configs", "delete", "straight", "--database", db)
	require.NoError(t, err)

	_, err = execute(t, "configs", "delete", "straight", "--database", db)
	assert.Error(t, err)

	_, err = execute(t, "send", "reset", "--database", db)
	assert.ErrorContains(t, err, "--url is required")
}
