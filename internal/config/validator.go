// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  A bad level
// name or listen address aborts startup before any logger is built from
// it.
//
// Notes
// -----
//   • The singleton is safe for concurrent use and caches struct metadata.

package config

import "github.com/go-playground/validator/v10"

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the validation errors, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
