// cmd/confres/diff.go
//
// `confres diff OLD NEW` – compare two configuration files.
//
// Without --schema the parsed files are compared as they are.  With a
// schema each file is resolved on its own (defaults applied, values
// coerced) and sensitive paths are masked in the output.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/yanizio/confres/internal/diff"
	"github.com/yanizio/confres/internal/loader"
	"github.com/yanizio/confres/internal/schema"
	"github.com/yanizio/confres/internal/schemafile"
	"github.com/yanizio/confres/internal/settings"
)

// errChanged signals --exit-code with a non-empty diff.
var errChanged = errors.New("configurations differ")

func newDiffCmd(a *app) *cobra.Command {
	var (
		schemaPath string
		exitCode   bool
	)
	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Show what changes between two configuration files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s schema.Node
			if schemaPath != "" {
				var err error
				if s, err = schemafile.Load(schemaPath); err != nil {
					return err
				}
			}
			prev, err := snapshot(cmd.Context(), a, args[0], s)
			if err != nil {
				return err
			}
			next, err := snapshot(cmd.Context(), a, args[1], s)
			if err != nil {
				return err
			}
			changes := diff.Diff(prev, next, s)
			printChanges(cmd.OutOrStdout(), changes)
			if exitCode && len(changes) > 0 {
				return errChanged
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "resolve both files through this schema document")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "fail when the files differ")
	return cmd
}

func snapshot(ctx context.Context, a *app, path string, s schema.Node) (map[string]any, error) {
	if s == nil {
		f, err := loader.Load(path)
		if err != nil {
			return nil, err
		}
		return f.Data, nil
	}
	return settings.Load(ctx, s, settings.Options{
		Files:  []string{path},
		Args:   []string{},
		Logger: a.log,
	})
}

func printChanges(w io.Writer, changes []diff.Change) {
	for _, c := range changes {
		switch c.Type {
		case diff.Added:
			fmt.Fprintf(w, "+ %s: %s\n", c.Path, show(c.NewValue))
		case diff.Removed:
			fmt.Fprintf(w, "- %s: %s\n", c.Path, show(c.OldValue))
		default:
			fmt.Fprintf(w, "~ %s: %s -> %s\n", c.Path, show(c.OldValue), show(c.NewValue))
		}
	}
}

func show(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case map[string]any, []any:
		return fmt.Sprintf("%v", t)
	}
	return cast.ToString(v)
}
