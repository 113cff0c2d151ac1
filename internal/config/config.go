package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/varpager/internal/inspect"
	"github.com/dshills/varpager/internal/logging"
)

// Adapter types understood by the debug section.
const (
	AdapterDelve   = "delve"
	AdapterGeneric = "generic"
)

// Config is the complete varpager configuration.
type Config struct {
	Inspect InspectConfig `toml:"inspect" yaml:"inspect"`
	Debug   DebugConfig   `toml:"debug" yaml:"debug"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// InspectConfig holds page sizes per container kind and walk bounds.
type InspectConfig struct {
	Indexed   int `toml:"indexed" yaml:"indexed"`
	Array     int `toml:"array" yaml:"array"`
	Linked    int `toml:"linked" yaml:"linked"`
	Tree      int `toml:"tree" yaml:"tree"`
	Scripted  int `toml:"scripted" yaml:"scripted"`
	Variables int `toml:"variables" yaml:"variables"`

	// MaxDepth is the number of levels printed by a walk.
	MaxDepth int `toml:"max_depth" yaml:"max_depth"`
	// MaxPages is the number of pages followed per level.
	MaxPages int `toml:"max_pages" yaml:"max_pages"`

	// Scripts are Lua programs whose collections are shown after the
	// frame's scopes.
	Scripts []string `toml:"scripts" yaml:"scripts"`
}

// DebugConfig describes how to reach the debug adapter and what to debug.
type DebugConfig struct {
	Adapter        string   `toml:"adapter" yaml:"adapter"`
	AdapterPath    string   `toml:"adapter_path" yaml:"adapter_path"`
	AdapterArgs    []string `toml:"adapter_args" yaml:"adapter_args"`
	Address        string   `toml:"address" yaml:"address"`
	Program        string   `toml:"program" yaml:"program"`
	Args           []string `toml:"args" yaml:"args"`
	Mode           string   `toml:"mode" yaml:"mode"`
	StopOnEntry    bool     `toml:"stop_on_entry" yaml:"stop_on_entry"`
	RequestTimeout Duration `toml:"request_timeout" yaml:"request_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sizes := inspect.DefaultPageSizes()
	return &Config{
		Inspect: InspectConfig{
			Indexed:   sizes[inspect.KindIndexed],
			Array:     sizes[inspect.KindArray],
			Linked:    sizes[inspect.KindLinked],
			Tree:      sizes[inspect.KindTree],
			Scripted:  sizes[inspect.KindScripted],
			Variables: sizes[inspect.KindVariables],
			MaxDepth:  3,
			MaxPages:  1,
		},
		Debug: DebugConfig{
			Adapter:        AdapterDelve,
			Mode:           "debug",
			RequestTimeout: Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// PageSizes returns the page sizes as used by inspect.
func (c InspectConfig) PageSizes() inspect.PageSizes {
	return inspect.PageSizes{
		inspect.KindIndexed:   c.Indexed,
		inspect.KindArray:     c.Array,
		inspect.KindLinked:    c.Linked,
		inspect.KindTree:      c.Tree,
		inspect.KindScripted:  c.Scripted,
		inspect.KindVariables: c.Variables,
	}
}

// SetPageSize overrides every page size.
func (c *InspectConfig) SetPageSize(n int) {
	c.Indexed = n
	c.Array = n
	c.Linked = n
	c.Tree = n
	c.Scripted = n
	c.Variables = n
}

// Load reads the file at path on top of the defaults. A missing file is not
// an error. The decoder is picked from the extension.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := Decode(cfg, path, data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data into cfg. name is used for the format and in errors.
// Unknown keys are rejected.
func Decode(cfg *Config, name string, data []byte) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		return decodeTOML(cfg, name, data)
	case ".yaml", ".yml":
		return decodeYAML(cfg, name, data)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func decodeTOML(cfg *Config, name string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(cfg); err != nil {
		perr := &ParseError{Path: name, Message: err.Error(), Err: err}

		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

func decodeYAML(cfg *Config, name string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Path: name, Message: err.Error(), Err: err}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	sizes := c.Inspect.PageSizes()
	for _, kind := range inspect.Kinds {
		if sizes[kind] <= 0 {
			return &ValidationError{Path: "inspect." + string(kind), Value: sizes[kind], Err: ErrInvalidPageSize}
		}
	}

	if c.Inspect.MaxDepth < 0 {
		return &ValidationError{Path: "inspect.max_depth", Value: c.Inspect.MaxDepth, Err: ErrInvalidValue}
	}
	if c.Inspect.MaxPages < 0 {
		return &ValidationError{Path: "inspect.max_pages", Value: c.Inspect.MaxPages, Err: ErrInvalidValue}
	}

	switch c.Debug.Adapter {
	case AdapterDelve, AdapterGeneric:
	default:
		return &ValidationError{Path: "debug.adapter", Value: c.Debug.Adapter, Err: ErrUnknownAdapter}
	}
	if c.Debug.RequestTimeout < 0 {
		return &ValidationError{Path: "debug.request_timeout", Value: c.Debug.RequestTimeout, Err: ErrInvalidValue}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Path: "log.level", Value: c.Log.Level, Err: err}
	}

	return nil
}

// Duration is a time.Duration written as a string such as "10s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
