// internal/config/model.go
//
// Typed configuration model for the confres binary itself.
//
// Context
// -------
// These structs define the shape of the tree that
// `internal/config/loader.go` builds from its overlay layers:
//
//   • built-in defaults                         – lowest precedence,
//   • optional YAML file (`--config`)           – operator settings,
//   • `CONFRES_`-prefixed environment overrides – highest precedence.
//
// This is the tool's own configuration, not the configuration it resolves
// for applications; that goes through internal/settings and a schema.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations are written as Go duration strings ("250ms", "2s").
//   • Two spaces after periods.  No em-dash.

package config

import "time"

//
// Log section
//

// Log selects level and sinks for internal/logger.
type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	File  string `koanf:"file"`
	Color bool   `koanf:"color"`
}

//
// Watch section
//

// Watch tunes `confres watch`.
type Watch struct {
	Debounce time.Duration `koanf:"debounce" validate:"gte=0"`
}

//
// Server section
//

// Server is the optional HTTP listener started by `confres watch --listen`.
// An empty ListenAddr disables it.
type Server struct {
	ListenAddr string `koanf:"listen_addr" validate:"omitempty,hostname_port"`
}

//
// Print section
//

// Print controls rendering of resolved output.
type Print struct {
	Mask bool `koanf:"mask"`
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	Log    Log    `koanf:"log"`
	Watch  Watch  `koanf:"watch"`
	Server Server `koanf:"server"`
	Print  Print  `koanf:"print"`
	Source string `koanf:"-"` // file the config was read from, if any
}
