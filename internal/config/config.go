// Package config provides configuration types and loading for relink.
// The on-disk format is TOML: a [general] table, a [log] table, and one
// [link.<name>] table per rule.
package config

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/mkranta/relink/internal/log"
)

// Endpoint describes one side of a link rule. Each slot, when set, is a
// regular expression that must match the whole target string. In the config
// an endpoint is written either as an inline table
// { client = "...", node = "...", port = "..." } or as a plain string,
// which is shorthand for an exact (escaped-literal) node-name match.
type Endpoint struct {
	Client *string `mapstructure:"client"`
	Node   *string `mapstructure:"node"`
	Port   *string `mapstructure:"port"`

	// Literal marks the plain-string shorthand form: the node slot is an
	// escaped literal rather than a regular expression.
	Literal bool `mapstructure:"-"`
}

// IsZero reports whether the endpoint was absent from the config.
func (e Endpoint) IsZero() bool {
	return e.Client == nil && e.Node == nil && e.Port == nil
}

// Equal reports byte-identical endpoint definitions. Rules compare equal
// across reloads only when every slot and the shorthand form match exactly.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Literal == other.Literal &&
		strPtrEqual(e.Client, other.Client) &&
		strPtrEqual(e.Node, other.Node) &&
		strPtrEqual(e.Port, other.Port)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// LinkRule is one [link.<name>] table: a source matcher ("out"), a sink
// matcher ("in"), and the channel-pairing flag.
type LinkRule struct {
	Out Endpoint `mapstructure:"out"`
	In  Endpoint `mapstructure:"in"`

	// SpecialEmptyPorts enables stereo channel pairing when both sides
	// omit the port slot. Defaults to true when absent.
	SpecialEmptyPorts *bool `mapstructure:"special_empty_ports"`
}

// SpecialEmpty returns the channel-pairing flag with its default applied.
func (r LinkRule) SpecialEmpty() bool {
	return r.SpecialEmptyPorts == nil || *r.SpecialEmptyPorts
}

// Equal reports byte-identical rule definitions.
func (r LinkRule) Equal(other LinkRule) bool {
	return r.Out.Equal(other.Out) &&
		r.In.Equal(other.In) &&
		r.SpecialEmpty() == other.SpecialEmpty()
}

// GeneralConfig holds the daemon-wide flags.
type GeneralConfig struct {
	// LingerLinks keeps links connected when the rule that created them
	// is removed or changed, instead of destroying them.
	LingerLinks bool `mapstructure:"linger_links"`

	// HotreloadConfig watches the config file and reloads on change.
	HotreloadConfig bool `mapstructure:"hotreload_config"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config is the full parsed configuration.
type Config struct {
	General GeneralConfig       `mapstructure:"general"`
	Log     LogConfig           `mapstructure:"log"`
	Links   map[string]LinkRule `mapstructure:"link"`
}

// Defaults returns a Config with default values and no rules.
func Defaults() Config {
	return Config{
		General: GeneralConfig{
			LingerLinks:     false,
			HotreloadConfig: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks the parsed configuration for structural errors. Regex
// compilation is checked separately when the rule set is compiled.
func (c Config) Validate() error {
	for name, rule := range c.Links {
		if rule.Out.IsZero() {
			return fmt.Errorf("link %q: out is required", name)
		}
		if rule.In.IsZero() {
			return fmt.Errorf("link %q: in is required", name)
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// endpointDecodeHook converts the plain-string shorthand form into an
// Endpoint with the node slot set and Literal marked.
func endpointDecodeHook() mapstructure.DecodeHookFuncType {
	endpointType := reflect.TypeOf(Endpoint{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != endpointType || from.Kind() != reflect.String {
			return data, nil
		}
		name := data.(string)
		return Endpoint{Node: &name, Literal: true}, nil
	}
}
