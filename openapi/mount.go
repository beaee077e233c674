package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"sigs.k8s.io/yaml"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/server"
)

const (
	// JSONPath and YAMLPath are served below the router prefix.
	JSONPath = "/api.json"
	YAMLPath = "/api.yaml"

	mimeYAML = "application/yaml"
)

var uiPage = template.Must(template.New("swagger-ui").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8" />
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@{{.Version}}/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@{{.Version}}/swagger-ui-standalone-preset.js"></script>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@{{.Version}}/swagger-ui-bundle.js"></script>
    <script>
      function HideTopbarPlugin() {
        return { components: { Topbar: function() { return null } } }
      }
      window.ui = SwaggerUIBundle({
        url: {{.SpecURL}},
        dom_id: '#swagger-ui',
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIStandalonePreset],
        plugins: [HideTopbarPlugin],
        layout: 'StandaloneLayout'
      })
    </script>
  </body>
</html>
`))

type uiData struct {
	Title   string
	Version string
	SpecURL string
}

// Mount serves the UI page at cfg.RouterPrefix and the document at
// <prefix>/api.json and <prefix>/api.yaml. Nothing is mounted when
// documentation is disabled.
func Mount(registrar server.RouteRegistrar, b *Builder, cfg config.OpenAPIConfig) {
	if !cfg.Enable {
		return
	}
	group := registrar.Group(cfg.RouterPrefix)
	h := &docHandler{
		builder: b,
		ui: uiData{
			Title:   b.title,
			Version: cfg.SwaggerUIVersion,
			SpecURL: group.FullPath(JSONPath),
		},
	}

	group.Add(http.MethodGet, "", h.index)
	group.Add(http.MethodGet, JSONPath, h.serveJSON)
	group.Add(http.MethodGet, YAMLPath, h.serveYAML)
}

type docHandler struct {
	builder *Builder
	ui      uiData
}

func (h *docHandler) index(c echo.Context) error {
	var buf bytes.Buffer
	if err := uiPage.Execute(&buf, h.ui); err != nil {
		return fmt.Errorf("render swagger ui: %w", err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (h *docHandler) serveJSON(c echo.Context) error {
	doc, err := h.builder.Document(c.Request().Context())
	if err != nil {
		return fmt.Errorf("build document: %w", err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *docHandler) serveYAML(c echo.Context) error {
	doc, err := h.builder.Document(c.Request().Context())
	if err != nil {
		return fmt.Errorf("build document: %w", err)
	}
	out, err := MarshalYAML(doc)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, mimeYAML, out)
}

// MarshalYAML renders doc as YAML with the same field names as its JSON form.
func MarshalYAML(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	out, err := yaml.JSONToYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("convert document to yaml: %w", err)
	}
	return out, nil
}
