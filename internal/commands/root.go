// Package commands implements the apidoc command line: type symbol
// generation, schema resolution, component rendering and document checks.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gaborage/apidoc/openapi"
	"github.com/gaborage/apidoc/schema"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// NewRootCommand assembles every subcommand under "apidoc".
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "apidoc",
		Short: "Inspect typings and OpenAPI documents",
		Long: `Tooling for services that validate requests against named types.

Typings are JSON or YAML files with a namespace and a definitions map.
The commands turn them into Go constants, resolved schemas or a
components-only OpenAPI document, and check finished documents.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		NewSymbolsCommand(),
		NewResolveCommand(),
		NewRenderCommand(),
		NewDoctorCommand(),
		NewVersionCommand(version),
	)
	return root
}

func loadTypings(ctx context.Context, dir string) (*schema.DirReflector, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("typings directory: %w", err)
	}
	r := schema.NewDirReflector(dir)
	if err := r.Init(ctx); err != nil {
		return nil, fmt.Errorf("load typings: %w", err)
	}
	return r, nil
}

func validateFormat(format string) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: json, yaml)", format)
	}
}

func encode(v any, format string) ([]byte, error) {
	if format == formatYAML {
		return openapi.MarshalYAML(v)
	}
	return jsonIndent(v)
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
