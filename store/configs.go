package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Seednode/electricmaze/maze"
)

// Config is a named, saved maze configuration.
type Config struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Grid      maze.Grid `json:"grid"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveConfig stores g under name, replacing any configuration already saved
// with that name. The grid is stored hidden.
func (s *Store) SaveConfig(ctx context.Context, name string, g maze.Grid) (Config, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Config{}, errors.New("configuration name must not be empty")
	}

	cfg := Config{
		ID:        uuid.NewString(),
		Name:      name,
		Grid:      g.Hidden(),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	raw, err := json.Marshal(cfg.Grid)
	if err != nil {
		return Config{}, fmt.Errorf("encode grid: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO configs (id, name, grid, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET id = excluded.id, grid = excluded.grid, created_at = excluded.created_at`,
		cfg.ID, cfg.Name, string(raw), cfg.CreatedAt.UnixMilli())
	if err != nil {
		return Config{}, fmt.Errorf("save configuration %q: %w", name, err)
	}

	return cfg, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (Config, error) {
	var (
		cfg       Config
		raw       string
		createdAt int64
	)
	if err := row.Scan(&cfg.ID, &cfg.Name, &raw, &createdAt); err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal([]byte(raw), &cfg.Grid); err != nil {
		return Config{}, fmt.Errorf("decode grid of %q: %w", cfg.Name, err)
	}
	cfg.CreatedAt = time.UnixMilli(createdAt).UTC()

	return cfg, nil
}

func (s *Store) Config(ctx context.Context, name string) (Config, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, grid, created_at FROM configs WHERE name = ?`, name)

	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, fmt.Errorf("configuration %q %w", name, ErrNotFound)
	}
	return cfg, err
}

// Configs lists every saved configuration, newest first.
func (s *Store) Configs(ctx context.Context) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, grid, created_at FROM configs ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := []Config{}
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

func (s *Store) DeleteConfig(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM configs WHERE name = ?`, name)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("configuration %q %w", name, ErrNotFound)
	}

	return nil
}

// LoadGrid returns the grid saved under name, ready to be played.
func (s *Store) LoadGrid(ctx context.Context, name string) (maze.Grid, error) {
	cfg, err := s.Config(ctx, name)
	if err != nil {
		return nil, err
	}
	return cfg.Grid.Hidden(), nil
}
