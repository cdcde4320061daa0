package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkranta/relink/internal/config"
	"github.com/mkranta/relink/internal/graph"
	"github.com/mkranta/relink/internal/pw"
	"github.com/mkranta/relink/internal/rules"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Show what the rules would link right now",
	Long: `Take one snapshot of the graph and report, per rule, the port pairs it
wants and whether each link already exists. Nothing is created or
destroyed; this is a dry run of the daemon's reconciliation.`,
	RunE: runLinks,
}

func init() {
	rootCmd.AddCommand(linksCmd)
}

func runLinks(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	set, err := rules.CompileSet(cfg.Links)
	if err != nil {
		return err
	}

	events, err := pw.Snapshot(cmd.Context())
	if err != nil {
		return err
	}

	model := graph.NewModel()
	for _, ev := range events {
		switch ev.Kind {
		case pw.KindClient:
			model.AddClient(ev.Client)
		case pw.KindNode:
			model.AddNode(ev.Node)
		case pw.KindPort:
			model.AddPort(ev.Port)
		case pw.KindLink:
			model.AddLink(ev.Link)
		}
	}

	sources := model.SourcePorts()
	sinks := model.SinkPorts()
	for _, name := range set.Names() {
		rule, _ := set.Get(name)
		pairs := rule.DesiredPairs(sources, sinks)
		fmt.Printf("%s: %d pairs\n", name, len(pairs))
		for _, pair := range pairs {
			state := "missing"
			if _, ok := model.LinkBetween(pair.Source.ID, pair.Sink.ID); ok {
				state = "linked"
			}
			fmt.Printf("  %-7s %s -> %s\n", state, pair.Source.Alias(), pair.Sink.Alias())
		}
	}
	return nil
}
