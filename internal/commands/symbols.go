package commands

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/spf13/cobra"
	"github.com/stoewer/go-strcase"

	"github.com/gaborage/apidoc/schema"
)

// SymbolsOptions holds options for the symbols command.
type SymbolsOptions struct {
	Typings    string
	Package    string
	OutputFile string
}

// NewSymbolsCommand creates the symbols command.
func NewSymbolsCommand() *cobra.Command {
	opts := &SymbolsOptions{}

	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "Generate Go constants for every typing symbol",
		Long: `Loads a typings directory and writes a Go file declaring one string
constant per symbol, so route declarations can name types without
string literals.`,
		Example: `  apidoc symbols -t ./typings -k types -o internal/types/symbols_gen.go`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := loadTypings(cmd.Context(), opts.Typings)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := GenerateSymbols(&buf, opts.Package, r.Symbols()); err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.OutputFile, buf.Bytes())
		},
	}

	cmd.Flags().StringVarP(&opts.Typings, "typings", "t", "typings", "Typings directory")
	cmd.Flags().StringVarP(&opts.Package, "package", "k", "types", "Package of the generated file")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}

// SymbolConstName is the Go identifier generated for symbol:
// "API.user_res" becomes TypeUserRes.
func SymbolConstName(symbol string) string {
	return "Type" + strcase.UpperCamelCase(schema.ComponentName(symbol))
}

// GenerateSymbols renders a Go file declaring one constant per symbol.
func GenerateSymbols(w io.Writer, pkg string, symbols []string) error {
	if pkg == "" {
		return fmt.Errorf("package name is required")
	}
	sorted := slices.Clone(symbols)
	slices.Sort(sorted)

	seen := make(map[string]string, len(sorted))
	defs := make([]jen.Code, 0, len(sorted))
	for _, symbol := range sorted {
		name := SymbolConstName(symbol)
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("symbols %s and %s both map to %s", prev, symbol, name)
		}
		seen[name] = symbol
		defs = append(defs, jen.Id(name).Op("=").Lit(symbol))
	}

	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by apidoc symbols. DO NOT EDIT.")
	if len(defs) > 0 {
		f.Comment(fmt.Sprintf("Type names declared in the typings (%s).", strings.Join(namespaces(sorted), ", ")))
		f.Const().Defs(defs...)
	}
	return f.Render(w)
}

func namespaces(symbols []string) []string {
	var out []string
	for _, symbol := range symbols {
		ns, _, found := strings.Cut(symbol, ".")
		if !found {
			ns = "global"
		}
		if !slices.Contains(out, ns) {
			out = append(out, ns)
		}
	}
	return out
}
