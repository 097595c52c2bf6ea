package viewdb

import (
	"encoding/json"
	"os"

	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/util"
)

// Config configures a database instance
type Config struct {
	// KV configures the row store
	KV KVConfig `json:"kv" validate:"required"`
	// LogLevel is one of debug, info, warn or error (default: info)
	LogLevel string `json:"logLevel,omitempty"`
	// Collections declares collection json schemas
	Collections []CollectionConfig `json:"collections,omitempty" validate:"dive"`
	// Views declares javascript views registered when the database opens
	Views []ViewConfig `json:"views,omitempty" validate:"dive"`
	// Concurrency limits the goroutines classifying rows while a view is populated (default: 8)
	Concurrency int `json:"concurrency,omitempty" validate:"gte=0"`
	// ScriptCacheSize is the number of compiled javascript programs kept in memory (default: 128)
	ScriptCacheSize int `json:"scriptCacheSize,omitempty" validate:"gte=0"`
}

// KVConfig configures a row store provider
type KVConfig struct {
	// Provider is the name of a registered provider (ex: badger, tikv)
	Provider string `json:"provider" validate:"required"`
	// Params are provider specific parameters
	Params map[string]any `json:"params,omitempty"`
}

// CollectionConfig declares the json schema of a collection
type CollectionConfig struct {
	Name       string `json:"name" validate:"required"`
	JSONSchema string `json:"jsonSchema" validate:"required"`
}

// ViewConfig declares a javascript view
type ViewConfig struct {
	Name string `json:"name" validate:"required"`
	// Collections restricts the view to the given collections
	Collections []string     `json:"collections,omitempty"`
	Grouping    ScriptConfig `json:"grouping" validate:"required"`
	Sorting     ScriptConfig `json:"sorting" validate:"required"`
}

func (c Config) validate() error {
	return errors.Wrap(util.ValidateStruct(c), errors.Configuration, "invalid config")
}

// LoadConfig loads a yaml or json config file
func LoadConfig(path string) (Config, error) {
	bits, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.Configuration, "failed to read config %s", path)
	}
	return ParseConfig(bits)
}

// ParseConfig parses a yaml or json config
func ParseConfig(content []byte) (Config, error) {
	jsonContent, err := util.YAMLToJSON(content)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.Configuration, "failed to parse config")
	}
	var c Config
	if err := json.Unmarshal(jsonContent, &c); err != nil {
		return Config{}, errors.Wrap(err, errors.Configuration, "failed to decode config")
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ConfigFromMap decodes a config from a generic map (ex: one produced by a flag or environment loader)
func ConfigFromMap(values map[string]any) (Config, error) {
	var c Config
	if err := util.Decode(values, &c); err != nil {
		return Config{}, errors.Wrap(err, errors.Configuration, "failed to decode config")
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
