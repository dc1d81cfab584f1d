/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Seednode/electricmaze/maze"
)

const maxMazeFileSize = 1 << 20

// mazeFile is a maze configuration as exchanged with browsers and stored on
// disk: either {"grid": [...], "name": "..."} or a bare grid.
type mazeFile struct {
	Name string    `json:"name,omitempty"`
	Grid maze.Grid `json:"grid"`
}

func decodeMazeFile(data []byte) (mazeFile, error) {
	var f mazeFile

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return f, errors.New("empty maze configuration")
	}

	if data[0] == '[' {
		err := json.Unmarshal(data, &f.Grid)
		return f, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return f, err
	}
	if f.Grid == nil {
		return f, errors.New(`maze configuration has no "grid"`)
	}

	return f, nil
}

// readMazeFile loads a configuration from disk. Unnamed configurations are
// named after the file.
func readMazeFile(path string) (mazeFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return mazeFile{}, err
	}
	defer fh.Close()

	data, err := io.ReadAll(io.LimitReader(fh, maxMazeFileSize+1))
	if err != nil {
		return mazeFile{}, err
	}
	if len(data) > maxMazeFileSize {
		return mazeFile{}, fmt.Errorf("%s is larger than %s", path, humanize.Bytes(maxMazeFileSize))
	}

	f, err := decodeMazeFile(data)
	if err != nil {
		return mazeFile{}, fmt.Errorf("%s: %w", path, err)
	}

	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return f, nil
}
