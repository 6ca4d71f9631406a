// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
queue_capacity = 4
pop_timeout = "5ms"
disable_surface_sync = true
backend = "headless"
`))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.QueueCapacity)
	assert.Equal(t, 5*time.Millisecond, cfg.PopTimeout.Std())
	assert.True(t, cfg.DisableSurfaceSync)
	assert.Equal(t, "headless", cfg.Backend)

	def := DefaultConfig()
	assert.Equal(t, def.ScenesPerFrame, cfg.ScenesPerFrame)
	assert.Equal(t, def.SyncTimeout, cfg.SyncTimeout)
	assert.Equal(t, def.SurfaceCacheCapacity, cfg.SurfaceCacheCapacity)
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("queue_depth = 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_depth")
}

func TestParseConfigRejectsBadDuration(t *testing.T) {
	_, err := ParseConfig([]byte(`pop_timeout = "soon"`))
	assert.Error(t, err)
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 0
	cfg.ScenesPerFrame = -1
	cfg.SyncTimeout = 0

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, field := range []string{"queue_capacity", "scenes_per_frame", "sync_timeout"} {
		assert.Contains(t, err.Error(), field)
	}

	_, err = ParseConfig([]byte("surface_cache_capacity = 0\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gxm.toml")
	require.NoError(t, os.WriteFile(path, []byte("scenes_per_frame = 8\nsync_timeout = \"250ms\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.ScenesPerFrame)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncTimeout.Std())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigMarshalParsesBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "wgpu-noop"
	cfg.PopTimeout = Duration(750 * time.Microsecond)

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "pop_timeout")

	got, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemorySize = 0
	_, err := New(WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
