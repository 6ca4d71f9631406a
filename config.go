// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gxm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/gxm/command"
	"github.com/gogpu/gxm/surface"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("gxm: invalid config")

// Duration is a time.Duration written as a string ("2ms") in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the tunables of a Renderer.
type Config struct {
	// QueueCapacity is the number of submitted scenes that may wait for
	// the render thread before Submit blocks.
	QueueCapacity int `toml:"queue_capacity"`

	// ScenesPerFrame bounds how many scenes one render loop iteration
	// executes before it yields a frame.
	ScenesPerFrame int `toml:"scenes_per_frame"`

	// PopTimeout is how long an idle render loop waits for a scene.
	PopTimeout Duration `toml:"pop_timeout"`

	// SyncTimeout bounds how long a guest access that hit a page trap
	// waits for the render thread to flush. On timeout the access goes
	// ahead with whatever guest memory holds.
	SyncTimeout Duration `toml:"sync_timeout"`

	// DisableSurfaceSync assumes host surfaces are always current and
	// never copies between host images and guest memory.
	DisableSurfaceSync bool `toml:"disable_surface_sync"`

	SurfaceCacheCapacity int `toml:"surface_cache_capacity"`

	// OverlapSlack is the distance in bytes past a surface base within
	// which a request may alias a component of that surface.
	OverlapSlack uint32 `toml:"overlap_slack"`

	TextureCacheSize int `toml:"texture_cache_size"`

	// Backend names a registered backend; empty picks the best one.
	Backend string `toml:"backend"`

	// PoolSize is the initial capacity of the command arena.
	PoolSize int `toml:"pool_size"`

	// MemorySize is the size of the guest memory space created when no
	// memory is supplied with WithMemory.
	MemorySize int `toml:"memory_size"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:        command.DefaultQueueCapacity,
		ScenesPerFrame:       4,
		PopTimeout:           Duration(2 * time.Millisecond),
		SyncTimeout:          Duration(5 * time.Second),
		SurfaceCacheCapacity: surface.DefaultCapacity,
		OverlapSlack:         surface.DefaultOverlapSlack,
		TextureCacheSize:     surface.DefaultTextureCacheSize,
		PoolSize:             1024,
		MemorySize:           16 << 20,
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}
	check(c.QueueCapacity > 0, "queue_capacity %d must be positive", c.QueueCapacity)
	check(c.ScenesPerFrame > 0, "scenes_per_frame %d must be positive", c.ScenesPerFrame)
	check(c.PopTimeout >= 0, "pop_timeout %s is negative", c.PopTimeout.Std())
	check(c.SyncTimeout > 0, "sync_timeout %s must be positive", c.SyncTimeout.Std())
	check(c.SurfaceCacheCapacity > 0, "surface_cache_capacity %d must be positive", c.SurfaceCacheCapacity)
	check(c.TextureCacheSize >= 0, "texture_cache_size %d is negative", c.TextureCacheSize)
	check(c.PoolSize >= 0, "pool_size %d is negative", c.PoolSize)
	check(c.MemorySize > 0, "memory_size %d must be positive", c.MemorySize)
	return errors.Join(errs...)
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are an
// error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("gxm: load config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("gxm: config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("gxm: config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes c as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
