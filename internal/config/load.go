package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mkranta/relink/internal/log"
)

// DefaultPath returns the default config file location,
// ~/.config/relink/relink.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "relink.toml"
	}
	return filepath.Join(home, ".config", "relink", "relink.toml")
}

// Load reads and validates the config file at path. A parse or validation
// failure returns an error without partial results; callers keep whatever
// config they already had.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	defaults := Defaults()
	v.SetDefault("general.linger_links", defaults.General.LingerLinks)
	v.SetDefault("general.hotreload_config", defaults.General.HotreloadConfig)
	v.SetDefault("log.level", defaults.Log.Level)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	decodeOpt := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		endpointDecodeHook(),
	))
	if err := v.Unmarshal(&cfg, decodeOpt); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	log.Debug(log.CatConfig, "config loaded", "path", path, "rules", len(cfg.Links))
	return cfg, nil
}

// LoadOrCreate loads the config file, writing a commented default template
// first if the file does not exist.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefaultConfig(path); err != nil {
			return Config{}, err
		}
	}
	return Load(path)
}

// DefaultConfigTemplate returns the default config as a TOML string with
// comments.
func DefaultConfigTemplate() string {
	return `# relink configuration

[general]
# Keep links connected when the rule that created them is removed.
linger_links = false
# Watch this file and reload rules on change.
hotreload_config = true

[log]
# trace, debug, info, warn, or error
level = "info"

# Each [link.<name>] table declares one rule. "out" matches source ports,
# "in" matches sink ports. A plain string is shorthand for an exact
# node-name match; an inline table gives per-field regular expressions
# (anchored: the pattern must match the whole name).
#
# [link.spotify-to-speakers]
# out = "Spotify"
# in = { node = "alsa_output.*", port = "playback_.*" }
#
# Omitting "port" on both sides pairs ports by stereo channel (FL with FL,
# FR with FR, and so on). Set special_empty_ports = false to link every
# matching combination instead.
#
# [link.mic-monitor]
# out = { node = "alsa_input.*" }
# in = "Recorder"
# special_empty_ports = true
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if needed.
func WriteDefaultConfig(path string) error {
	log.Debug(log.CatConfig, "writing default config", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", path)
	return nil
}
