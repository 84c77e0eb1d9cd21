package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

type config struct {
	Generator   string
	Dim         int
	Levels      int
	Order       int
	Points      int
	Seed        int64
	Tolerance   float64
	BoxesPath   string
	MetricsAddr string
}

// loadConfig reads defaults from the environment and lets flags override them
func loadConfig(args []string, getenv func(string) string) (config, error) {
	cfg := config{
		Generator: "cube",
		Dim:       2,
		Levels:    3,
		Order:     3,
		Points:    10000,
		Seed:      1,
		Tolerance: 1e-10,
	}
	var err error
	if v := getenv("MESHLOCATE_GENERATOR"); v != "" {
		cfg.Generator = v
	}
	if cfg.Dim, err = envInt(getenv, "MESHLOCATE_DIM", cfg.Dim); err != nil {
		return cfg, err
	}
	if cfg.Levels, err = envInt(getenv, "MESHLOCATE_LEVELS", cfg.Levels); err != nil {
		return cfg, err
	}
	if cfg.Order, err = envInt(getenv, "MESHLOCATE_ORDER", cfg.Order); err != nil {
		return cfg, err
	}
	if cfg.Points, err = envInt(getenv, "MESHLOCATE_POINTS", cfg.Points); err != nil {
		return cfg, err
	}
	if v := getenv("MESHLOCATE_SEED"); v != "" {
		if cfg.Seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return cfg, fmt.Errorf("MESHLOCATE_SEED: %w", err)
		}
	}
	if v := getenv("MESHLOCATE_TOLERANCE"); v != "" {
		if cfg.Tolerance, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, fmt.Errorf("MESHLOCATE_TOLERANCE: %w", err)
		}
	}
	cfg.BoxesPath = getenv("MESHLOCATE_BOXES")
	cfg.MetricsAddr = getenv("MESHLOCATE_METRICS_ADDR")

	fs := flag.NewFlagSet("meshlocate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Generator, "generator", cfg.Generator, "Mesh generator (cube, ball)")
	fs.IntVar(&cfg.Dim, "dim", cfg.Dim, "Spatial dimension")
	fs.IntVar(&cfg.Levels, "levels", cfg.Levels, "Global refinement levels")
	fs.IntVar(&cfg.Order, "order", cfg.Order, "Mapping order of curved cells")
	fs.IntVar(&cfg.Points, "points", cfg.Points, "Number of random points to locate")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	fs.Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "Reference-space tolerance")
	fs.StringVar(&cfg.BoxesPath, "boxes", cfg.BoxesPath, "Write cell bounding boxes as gnuplot data to this file")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address after the run")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch cfg.Generator {
	case "cube", "ball":
	default:
		return cfg, fmt.Errorf("unknown generator %q", cfg.Generator)
	}
	if cfg.Dim < 1 || cfg.Dim > 3 {
		return cfg, fmt.Errorf("dimension %d out of range [1,3]", cfg.Dim)
	}
	if cfg.Levels < 0 || cfg.Points < 0 {
		return cfg, fmt.Errorf("levels %d and points %d must not be negative", cfg.Levels, cfg.Points)
	}
	return cfg, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// newLogger builds a text or JSON handler at the level named by LOG_LEVEL
func newLogger(level, format string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(h)
}
