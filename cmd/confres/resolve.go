// cmd/confres/resolve.go
//
// `confres resolve` – one resolution pass, printed to stdout.
//
// Application flags go after `--` and are matched against the leaves the
// schema marks `cli: true`:
//
//	confres resolve -s schema.yaml -f app.yaml --env -- --server.port=9090

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yanizio/confres/internal/printer"
	"github.com/yanizio/confres/internal/resolve"
	"github.com/yanizio/confres/internal/schema"
	"github.com/yanizio/confres/internal/settings"
)

func newResolveCmd(a *app) *cobra.Command {
	var (
		src    sourceFlags
		format string
		query  string
		reveal bool
	)
	cmd := &cobra.Command{
		Use:   "resolve [-- app flags]",
		Short: "Resolve a schema and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			appArgs, err := afterDash(cmd, args)
			if err != nil {
				return err
			}
			s, opts, cleanup, err := src.prepare(cmd.Context(), a, appArgs, false)
			if err != nil {
				return err
			}
			defer cleanup()

			ext, err := settings.LoadExtended(cmd.Context(), s, opts)
			if err != nil {
				return err
			}
			popts := printer.Options{Reveal: reveal || !a.cfg.Print.Mask}
			return render(cmd.OutOrStdout(), format, query, ext.Data, s, popts)
		},
	}
	src.bind(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json, yaml, env, provenance")
	cmd.Flags().StringVarP(&query, "query", "q", "", "print only this gjson path (json format)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print sensitive values")
	return cmd
}

// afterDash returns the arguments following `--`, or an error for stray
// positional arguments.
func afterDash(cmd *cobra.Command, args []string) ([]string, error) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("unexpected arguments %q; put application flags after --", args)
		}
		return nil, nil
	}
	if dash > 0 {
		return nil, fmt.Errorf("unexpected arguments %q before --", args[:dash])
	}
	return args[dash:], nil
}

func render(w io.Writer, format, query string, t resolve.Tree, s schema.Node, opts printer.Options) error {
	plain := resolve.ToPlain(t)
	var (
		out []byte
		err error
	)
	switch format {
	case "json":
		if out, err = printer.JSON(plain, s, opts); err != nil {
			return err
		}
		if query != "" {
			raw, ok := printer.Query(out, query)
			if !ok {
				return fmt.Errorf("query %q matched nothing", query)
			}
			out = []byte(raw + "\n")
		}
	case "yaml":
		out, err = printer.YAML(plain, s, opts)
	case "env":
		out, err = printer.Dotenv(plain, s, opts)
	case "provenance":
		return printer.Provenance(w, t, opts)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
