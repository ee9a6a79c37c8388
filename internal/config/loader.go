// internal/config/loader.go
//
// Configuration loader for the confres binary.
//
/*
Context
--------
`Load(path)` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Built-in defaults (`info` level, 100ms debounce, masking on).
  2. The YAML file at `path`, when `path` is non-empty.
  3. Environment variables prefixed `CONFRES_`, where `__` maps to “.”
     (e.g., `CONFRES_SERVER__LISTEN_ADDR → server.listen_addr`).

After merging, the tree is unmarshalled into strongly-typed structs,
validated, and cached in an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans: YAML read, env overlay.
  • ERROR spans: YAML parse, env overlay, unmarshal, validation failures.
  • Logs use the global *sugared* logger (`zap.S()`); at this point it is
    still the no-op default unless the caller installed one.
*/
package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "CONFRES_"

var current atomic.Pointer[Config]

var defaults = map[string]any{
	"log.level":      "info",
	"log.color":      false,
	"watch.debounce": "100ms",
	"print.mask":     true,
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads defaults, the optional YAML file, env overrides, validates,
// and caches Config.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			zap.S().Errorw("config yaml load failed", "file", path, "err", err)
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		zap.S().Debugw("config yaml loaded", "file", path)
	}

	// Env overrides: CONFRES_SERVER__LISTEN_ADDR → server.listen_addr
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}
	cfg.Source = path

	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, fmt.Errorf("config: %w", err)
	}

	current.Store(&cfg)
	zap.S().Debugw("config loaded",
		"source", cfg.Source,
		"level", cfg.Log.Level,
		"debounce", cfg.Watch.Debounce,
	)
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// Get returns the last loaded Config, or nil before the first Load.
func Get() *Config { return current.Load() }
