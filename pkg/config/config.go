package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Config - корневая структура конфигурации приложения
// yaml и validate теги для парсинга и валидации

type Config struct {
	Logger      LoggerConfig       `yaml:"logger" validate:"required"`
	Server      ServerConfig       `yaml:"http-server" validate:"required"`
	Mode        string             `yaml:"mode" validate:"omitempty,oneof=development production dev prod"`
	Selectors   SelectorsConfig    `yaml:"selectors"`
	Collections []CollectionConfig `yaml:"collections" validate:"unique=Name,dive"`
}

type ServerConfig struct {
	Port              int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"min=0"`
}

// SelectorsConfig sizes the per-collection cache of flattened results.
type SelectorsConfig struct {
	CacheSize int `yaml:"cache_size" validate:"min=0"`
}

// CollectionConfig declares a document collection. Key and index keys are
// dot-separated paths into the document; an empty Key makes every document
// keyed by a generated number.
type CollectionConfig struct {
	Name       string        `yaml:"name" validate:"required,excludesall=/"`
	Key        string        `yaml:"key"`
	SharedKeys bool          `yaml:"shared_keys"`
	Indexes    []IndexConfig `yaml:"indexes" validate:"unique=Name,dive"`
}

type IndexConfig struct {
	Name       string `yaml:"name" validate:"required"`
	Key        string `yaml:"key"`
	MultiEntry bool   `yaml:"multi_entry"`
	Unique     bool   `yaml:"unique"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Path splits a dot-separated key path; the index name is used when empty.
func (c IndexConfig) Path() []string {
	if c.Key == "" {
		return []string{c.Name}
	}
	return strings.Split(c.Key, ".")
}

// Path splits the primary key path, nil when keys are generated.
func (c CollectionConfig) Path() []string {
	if c.Key == "" {
		return nil
	}
	return strings.Split(c.Key, ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the yaml-level constraints of cfg.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Parse decodes YAML, fills the omitted settings from Default and validates
// the result.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Logger.Level == "" {
		c.Logger.Level = def.Logger.Level
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = def.Server.ReadHeaderTimeout
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Selectors.CacheSize == 0 {
		c.Selectors.CacheSize = def.Selectors.CacheSize
	}
}

// Default returns the baseline config: debug logging, port 8080 and
// production mode.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
		},
		Mode: "production",
		Selectors: SelectorsConfig{
			CacheSize: 16,
		},
	}
}
