package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(nil, envMap(nil))
		require.NoError(t, err)
		assert.Equal(t, "cube", cfg.Generator)
		assert.Equal(t, 2, cfg.Dim)
		assert.Equal(t, 1e-10, cfg.Tolerance)
	})

	t.Run("flags override environment", func(t *testing.T) {
		env := envMap(map[string]string{
			"MESHLOCATE_TOLERANCE": "1e-8",
			"MESHLOCATE_DIM":       "3",
			"MESHLOCATE_GENERATOR": "ball",
		})
		cfg, err := loadConfig([]string{"-dim", "2", "-points", "7"}, env)
		require.NoError(t, err)
		assert.Equal(t, 1e-8, cfg.Tolerance)
		assert.Equal(t, 2, cfg.Dim)
		assert.Equal(t, 7, cfg.Points)
		assert.Equal(t, "ball", cfg.Generator)
	})

	t.Run("every setting has an environment variable", func(t *testing.T) {
		env := envMap(map[string]string{
			"MESHLOCATE_ORDER":        "5",
			"MESHLOCATE_SEED":         "42",
			"MESHLOCATE_BOXES":        "boxes.gnu",
			"MESHLOCATE_LEVELS":       "4",
			"MESHLOCATE_METRICS_ADDR": ":9100",
		})
		cfg, err := loadConfig(nil, env)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Order)
		assert.Equal(t, int64(42), cfg.Seed)
		assert.Equal(t, "boxes.gnu", cfg.BoxesPath)
		assert.Equal(t, 4, cfg.Levels)
		assert.Equal(t, ":9100", cfg.MetricsAddr)

		cfg, err = loadConfig([]string{"-seed", "7", "-boxes", "other.gnu"}, env)
		require.NoError(t, err)
		assert.Equal(t, int64(7), cfg.Seed)
		assert.Equal(t, "other.gnu", cfg.BoxesPath)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := loadConfig(nil, envMap(map[string]string{"MESHLOCATE_SEED": "x"}))
		assert.Error(t, err)
		_, err = loadConfig(nil, envMap(map[string]string{"MESHLOCATE_TOLERANCE": "tiny"}))
		assert.Error(t, err)
		_, err = loadConfig([]string{"-generator", "torus"}, envMap(nil))
		assert.Error(t, err)
		_, err = loadConfig([]string{"-dim", "4"}, envMap(nil))
		assert.Error(t, err)
		_, err = loadConfig([]string{"-nope"}, envMap(nil))
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestRun(t *testing.T) {
	boxes := filepath.Join(t.TempDir(), "boxes.gnu")
	cfg, err := loadConfig([]string{"-levels", "2", "-points", "200", "-boxes", boxes}, envMap(nil))
	require.NoError(t, err)

	var out bytes.Buffer
	logger := slog.New(slog.DiscardHandler)
	require.NoError(t, run(context.Background(), cfg, logger, prometheus.NewRegistry(), &out))
	assert.Contains(t, out.String(), "Located 200 points")
	// Points are drawn inside the mesh bounds, so none is missed
	assert.Regexp(t, `none\s+0\n`, out.String())

	data, err := os.ReadFile(boxes)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# x0 x1 level\n"))

	ball, err := loadConfig([]string{"-generator", "ball", "-levels", "1", "-points", "100"}, envMap(nil))
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, run(context.Background(), ball, logger, prometheus.NewRegistry(), &out))
	assert.Contains(t, out.String(), "Located 100 points")
}
