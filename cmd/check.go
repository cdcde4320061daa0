package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/rules"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file",
	Long: `Parse and validate the config file, including compiling every rule's
patterns, without touching the server. Exits non-zero if anything is
wrong, so it slots into editor hooks and CI.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(_ *cobra.Command, _ []string) error {
	path := configPath()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	set, err := rules.CompileSet(cfg.Links)
	if err != nil {
		return err
	}

	fmt.Printf("%s: OK (%d rules)\n", path, set.Len())
	return nil
}
