package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides selected fields from FLOCK_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"FLOCK_AGENTS", &c.Population.Initial},
		{"FLOCK_CAPACITY", &c.Population.Capacity},
		{"FLOCK_GRID_DIMENSION", &c.Grid.Dimension},
		{"FLOCK_WORKERS", &c.Physics.Workers},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"FLOCK_CELL_SIZE", &c.Grid.CellSize},
		{"FLOCK_TICK_RATE", &c.Server.TickRate},
	}
	for _, e := range floats {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", e.key, v, err)
		}
		*e.dst = f
	}

	if v, ok := lookup("FLOCK_OUT_OF_RANGE_POLICY"); ok && v != "" {
		c.Grid.OutOfRangePolicy = v
	}
	if v, ok := lookup("FLOCK_ADDR"); ok && v != "" {
		c.Server.Addr = v
	}
	return nil
}
