// Package cmd wires up the relink command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/log"
)

var (
	version   = "dev"
	cfgFile   string
	logLevel  string
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "relink",
	Short: "Automatic audio link management for PipeWire",
	Long: `relink keeps PipeWire links in line with declarative rules: each rule
names source and sink port patterns, and the daemon creates and removes
links as matching ports appear and disappear.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if debugFlag {
			log.SetMinLevel(log.LevelDebug)
			return nil
		}
		if logLevel != "" {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetMinLevel(lvl)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/relink/relink.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: trace, debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"shorthand for --log-level debug")
}

// configPath resolves the config file location from the flag or the
// default under the user's config directory.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
