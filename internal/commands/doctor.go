package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pb33f/libopenapi"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
	"sigs.k8s.io/yaml"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Verbose bool
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}

	cmd := &cobra.Command{
		Use:   "doctor FILE",
		Short: "Check an OpenAPI document",
		Long: `Parses a JSON or YAML OpenAPI document with two independent parsers
and reports every problem found.

Checks include:
- OpenAPI version is 3.x
- the document builds into a v3 model
- the document passes structural validation`,
		Example: `  apidoc doctor docs/api.yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			return runDoctor(cmd, data, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")
	return cmd
}

func runDoctor(cmd *cobra.Command, data []byte, opts *DoctorOptions) error {
	out := cmd.OutOrStdout()
	var failed bool
	report := func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Fprintf(out, "❌ %s: %v\n", name, err)
			return
		}
		fmt.Fprintf(out, "✅ %s\n", name)
	}

	version, err := documentVersion(data)
	report("OpenAPI version "+version, err)

	paths, schemas, err := buildModel(data)
	report("Model builds", err)
	if err == nil && opts.Verbose {
		fmt.Fprintf(out, "📋 %d paths, %d component schemas\n", paths, schemas)
	}

	report("Document is valid", validateDocument(cmd, data))

	if failed {
		return errors.New("document check failed")
	}
	fmt.Fprintln(out, "All checks passed")
	return nil
}

// documentVersion returns the openapi field and fails unless it is 3.x.
func documentVersion(data []byte) (string, error) {
	var head struct {
		OpenAPI string `json:"openapi"`
		Swagger string `json:"swagger"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("not JSON or YAML: %w", err)
	}
	if head.OpenAPI == "" {
		if head.Swagger != "" {
			return head.Swagger, fmt.Errorf("swagger %s documents are not supported", head.Swagger)
		}
		return "", errors.New("openapi field is missing")
	}

	v := "v" + strings.TrimPrefix(head.OpenAPI, "v")
	if !semver.IsValid(v) {
		return head.OpenAPI, fmt.Errorf("%q is not a version", head.OpenAPI)
	}
	if semver.Major(v) != "v3" {
		return head.OpenAPI, fmt.Errorf("version %s is not 3.x", head.OpenAPI)
	}
	return head.OpenAPI, nil
}

func buildModel(data []byte) (paths, schemas int, err error) {
	doc, err := libopenapi.NewDocument(data)
	if err != nil {
		return 0, 0, err
	}
	model, errs := doc.BuildV3Model()
	if len(errs) > 0 {
		return 0, 0, errors.Join(errs...)
	}
	if model == nil {
		return 0, 0, errors.New("resulting model is nil")
	}

	if model.Model.Paths != nil && model.Model.Paths.PathItems != nil {
		for pair := model.Model.Paths.PathItems.First(); pair != nil; pair = pair.Next() {
			paths++
		}
	}
	if model.Model.Components != nil && model.Model.Components.Schemas != nil {
		for pair := model.Model.Components.Schemas.First(); pair != nil; pair = pair.Next() {
			schemas++
		}
	}
	return paths, schemas, nil
}

func validateDocument(cmd *cobra.Command, data []byte) error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return err
	}
	return doc.Validate(cmd.Context())
}
