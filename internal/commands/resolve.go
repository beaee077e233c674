package commands

import (
	"encoding/json"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cobra"

	"github.com/gaborage/apidoc/schema"
)

// ResolveOptions holds options for the resolve command.
type ResolveOptions struct {
	Typings string
	Format  string
}

// resolved is what resolve prints for one type.
type resolved struct {
	Schema     *openapi3.SchemaRef `json:"schema"`
	Components openapi3.Schemas    `json:"components,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &ResolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve TYPE",
		Short: "Print the schema and components of one type",
		Long: `Resolves a type name the way request validation does: primitives and
"any" inline, named types as a components reference plus every
component the type reaches.`,
		Example: `  apidoc resolve API.UserRes -t ./typings -f yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(opts.Format); err != nil {
				return err
			}
			r, err := loadTypings(cmd.Context(), opts.Typings)
			if err != nil {
				return err
			}
			ts, err := schema.NewResolver(r).Resolve(args[0])
			if err != nil {
				return err
			}
			data, err := encode(resolved{Schema: ts.Schema, Components: ts.Components}, opts.Format)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), "", data)
		},
	}

	cmd.Flags().StringVarP(&opts.Typings, "typings", "t", "typings", "Typings directory")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", formatJSON, "Output format (json|yaml)")
	return cmd
}

func jsonIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
