package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Environment names accepted by app.env.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the root configuration of an apidoc service.
type Config struct {
	App     AppConfig     `koanf:"app" json:"app"`
	Server  ServerConfig  `koanf:"server" json:"server"`
	Log     LogConfig     `koanf:"log" json:"log"`
	OpenAPI OpenAPIConfig `koanf:"openapi" json:"openapi"`

	k *koanf.Koanf
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name    string `koanf:"name" json:"name" validate:"required"`
	Version string `koanf:"version" json:"version" validate:"required"`
	Env     string `koanf:"env" json:"env" validate:"oneof=development staging production"`
	Debug   bool   `koanf:"debug" json:"debug"`
}

// ServerConfig configures the echo server.
type ServerConfig struct {
	Host    string        `koanf:"host" json:"host"`
	Port    int           `koanf:"port" json:"port" validate:"min=1,max=65535"`
	Timeout TimeoutConfig `koanf:"timeout" json:"timeout"`
	Path    PathConfig    `koanf:"path" json:"path"`
}

// TimeoutConfig holds server timeouts.
type TimeoutConfig struct {
	Read     time.Duration `koanf:"read" json:"read" validate:"gt=0"`
	Write    time.Duration `koanf:"write" json:"write" validate:"gt=0"`
	Shutdown time.Duration `koanf:"shutdown" json:"shutdown" validate:"gt=0"`
}

// PathConfig holds the base path every controller prefix is mounted under.
type PathConfig struct {
	Base string `koanf:"base" json:"base" validate:"omitempty,startswith=/"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty"`
}

// OpenAPIConfig controls documentation assembly and the UI routes.
// Request validation runs regardless of Enable.
type OpenAPIConfig struct {
	Enable           bool                            `koanf:"enable" json:"enable"`
	RouterPrefix     string                          `koanf:"routerprefix" json:"routerPrefix" validate:"required,startswith=/"`
	SwaggerUIVersion string                          `koanf:"swaggeruiversion" json:"swaggerUiVersion" validate:"required"`
	TypingsPath      string                          `koanf:"typingspath" json:"typingsPath"`
	Title            string                          `koanf:"title" json:"title"`
	Description      string                          `koanf:"description" json:"description"`
	Version          string                          `koanf:"version" json:"version" validate:"required"`
	Security         map[string]SecuritySchemeConfig `koanf:"security" json:"security" validate:"dive"`
}

// SecuritySchemeConfig describes one entry of components.securitySchemes.
type SecuritySchemeConfig struct {
	Type         string `koanf:"type" json:"type" validate:"required,oneof=apiKey http oauth2 openIdConnect"`
	Description  string `koanf:"description" json:"description"`
	Name         string `koanf:"name" json:"name" validate:"required_if=Type apiKey"`
	In           string `koanf:"in" json:"in" validate:"omitempty,oneof=query header cookie"`
	Scheme       string `koanf:"scheme" json:"scheme" validate:"required_if=Type http"`
	BearerFormat string `koanf:"bearerformat" json:"bearerFormat"`
}

// IsDevelopment reports whether error responses may carry details.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// Exists reports whether key was set by any configuration source.
func (c *Config) Exists(key string) bool {
	return c.k != nil && c.k.Exists(key)
}
