package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the configured rules",
	RunE:  runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func runRules(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	set, err := rules.CompileSet(cfg.Links)
	if err != nil {
		return err
	}

	for _, name := range set.Names() {
		rule, _ := set.Get(name)
		fmt.Printf("%s:\n", name)
		fmt.Printf("  out: %s\n", describeEndpoint(rule.Raw.Out))
		fmt.Printf("  in:  %s\n", describeEndpoint(rule.Raw.In))
		if !rule.SpecialEmptyPorts {
			fmt.Printf("  special_empty_ports: false\n")
		}
	}
	if set.Len() == 0 {
		fmt.Println("no rules configured")
	}
	return nil
}

func describeEndpoint(e config.Endpoint) string {
	var parts []string
	if e.Client != nil {
		parts = append(parts, fmt.Sprintf("client=%q", *e.Client))
	}
	if e.Node != nil {
		parts = append(parts, fmt.Sprintf("node=%q", *e.Node))
	}
	if e.Port != nil {
		parts = append(parts, fmt.Sprintf("port=%q", *e.Port))
	}
	if len(parts) == 0 {
		return "(matches nothing)"
	}
	if e.Literal {
		parts = append(parts, "(literal)")
	}
	return strings.Join(parts, " ")
}
