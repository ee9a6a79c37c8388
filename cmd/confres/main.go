// cmd/confres/main.go
//
// confres – command-line entry point.
//
// Commands
// --------
//
//	resolve   resolve a schema against files, env, flags, and defaults,
//	          then print the result (json, yaml, env, or provenance).
//	diff      compare two configuration files, optionally through a schema.
//	watch     resolve, then print changes as source files are edited;
//	          optionally serve /config and /metrics over HTTP.
//	schema    list the leaves a schema document declares.
//
// Boot sequence
// -------------
//
//  1. Load the tool's own config (`--config`, then CONFRES_* env).
//
//  2. Start the logger on stderr (plus a rotated file when configured) so
//     stdout carries only command output.
//
//  3. Run the sub-command.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/confres/internal/config"
	"github.com/yanizio/confres/internal/logger"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// app carries what every sub-command needs after boot.
type app struct {
	cfg *config.Config
	log *zap.SugaredLogger

	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "confres:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "confres",
		Short:         "Resolve typed configuration from files, env, and flags",
		Version:       fmt.Sprintf("%s (%s, %s)", version, commit, runtime.Version()),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.boot(stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("CONFRES_CONFIG"), "confres config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newResolveCmd(a),
		newDiffCmd(a),
		newWatchCmd(a),
		newSchemaCmd(a),
	)
	return root
}

// boot loads the tool config and installs the logger.
func (a *app) boot(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Color:   cfg.Log.Color && isTerminal(stderr),
		Console: stderr,
	})
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
