package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/creditrisk/graphqa/graphstore"
	"github.com/creditrisk/graphqa/schema"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the graph schema the pipeline validates against",
		RunE: func(cmd *cobra.Command, args []string) error {
			builtin, _ := cmd.Flags().GetBool("builtin")
			format, _ := cmd.Flags().GetString("format")

			var (
				s   *schema.GraphSchema
				err error
			)
			if builtin {
				s = schema.CreditRisk()
			} else {
				s, err = a.introspect(cmd.Context())
				if err != nil {
					return err
				}
			}
			return writeSchema(cmd.OutOrStdout(), s, format)
		},
	}
	cmd.Flags().Bool("builtin", false, "Print the reference credit-risk schema without connecting")
	cmd.Flags().String("format", "text", "Output format: text|json|yaml")
	return cmd
}

func (a *app) introspect(ctx context.Context) (*schema.GraphSchema, error) {
	store, err := graphstore.Open(ctx, a.cfg.Store(), graphstore.WithStoreLogger(a.logger))
	if err != nil {
		return nil, err
	}
	defer store.Close(context.WithoutCancel(ctx))

	return schema.NewCache(store, schema.WithLogger(a.logger)).Load(ctx)
}

func writeSchema(w io.Writer, s *schema.GraphSchema, format string) error {
	switch format {
	case "text", "":
		_, err := io.WriteString(w, s.Render())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.Definition())
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s.Definition()); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}
