package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/openapi"
	"github.com/gaborage/apidoc/server"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	Typings    string
	OutputFile string
	Format     string
	Title      string
	Version    string
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render [TYPE...]",
		Short: "Render typings as a components-only OpenAPI document",
		Long: `Builds an OpenAPI 3 document without paths whose components.schemas
hold the given types, or every typing when none is named. The result is
checked for dangling references before it is written.`,
		Example: `  # Every typing as YAML
  apidoc render -t ./typings -o docs/components.yaml

  # Two types as JSON
  apidoc render API.UserRes API.Error -f json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(opts.Format); err != nil {
				return err
			}
			r, err := loadTypings(cmd.Context(), opts.Typings)
			if err != nil {
				return err
			}

			symbols := args
			if len(symbols) == 0 {
				symbols = r.Symbols()
			}
			cfg := &config.Config{OpenAPI: config.OpenAPIConfig{Enable: true}}
			reg := server.NewRegistry(cfg, r, logger.NewNop())
			b := openapi.New(reg,
				openapi.WithTitle(opts.Title),
				openapi.WithVersion(opts.Version),
				openapi.WithComponents(symbols...))

			doc, err := b.Build(cmd.Context())
			if err != nil {
				return fmt.Errorf("render components: %w", err)
			}
			data, err := encode(doc, opts.Format)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.OutputFile, data)
		},
	}

	cmd.Flags().StringVarP(&opts.Typings, "typings", "t", "typings", "Typings directory")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Output file (stdout when empty)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", formatYAML, "Output format (json|yaml)")
	cmd.Flags().StringVar(&opts.Title, "title", "API", "Document title")
	cmd.Flags().StringVar(&opts.Version, "doc-version", "1.0.0", "Document version")
	return cmd
}
