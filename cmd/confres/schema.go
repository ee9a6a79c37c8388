// cmd/confres/schema.go
//
// `confres schema FILE` – list what a schema document declares.

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yanizio/confres/internal/diff"
	"github.com/yanizio/confres/internal/schema"
	"github.com/yanizio/confres/internal/schemafile"
)

func newSchemaCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema FILE",
		Short: "List the options a schema document declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := schemafile.Load(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tKIND\tREQUIRED\tENV\tFLAG\tDEFAULT\tHELP")
			for _, l := range schema.Leaves(s) {
				c := l.Option.Base()
				flag := "-"
				if c.CLI {
					flag = "--" + l.Path
				}
				def := "-"
				if v, ok := c.DefaultValue(); ok {
					def = fmt.Sprint(v)
					if c.Sensitive {
						def = diff.MaskToken
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
					l.Path, kindOf(l.Option), c.Required, dash(c.Env), flag, def, c.Help)
			}
			return tw.Flush()
		},
	}
}

func kindOf(o schema.Option) string {
	a, ok := o.(*schema.Array)
	if !ok {
		return string(o.Kind())
	}
	switch item := a.Item().(type) {
	case schema.Option:
		return "array<" + kindOf(item) + ">"
	default:
		return "array<object>"
	}
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
