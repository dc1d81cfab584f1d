package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/electricmaze/maze"
)

func TestDecodeMazeFile(t *testing.T) {
	t.Run("bare grid", func(t *testing.T) {
		f, err := decodeMazeFile([]byte(mustJSON(t, columnMaze(0))))
		require.NoError(t, err)
		assert.Empty(t, f.Name)
		assert.Equal(t, columnMaze(0), f.Grid)
	})

	t.Run("named grid", func(t *testing.T) {
		f, err := decodeMazeFile([]byte(mustJSON(t, mazeFile{Name: "left", Grid: columnMaze(0)})))
		require.NoError(t, err)
		assert.Equal(t, "left", f.Name)
		assert.Equal(t, 8, f.Grid.Rows())
	})

	for name, input := range map[string]string{
		"empty":         "  \n",
		"missing grid":  `{"name":"nothing"}`,
		"unknown field": `{"grid":[],"colour":"red"}`,
		"malformed":     `[[{"isPath":true}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeMazeFile([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestReadMazeFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "straight.json")
	require.NoError(t, os.WriteFile(path, []byte(mustJSON(t, columnMaze(4))), 0o644))

	f, err := readMazeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "straight", f.Name)
	assert.Equal(t, 8, f.Grid.Count(maze.Path))

	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, []byte("["+strings.Repeat(" ", maxMazeFileSize)+"]"), 0o644))

	_, err = readMazeFile(big)
	assert.ErrorContains(t, err, "larger than")

	_, err = readMazeFile(filepath.Join(dir, "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
