package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkranta/relink/internal/daemon"
	"github.com/mkranta/relink/internal/log"
	"github.com/mkranta/relink/internal/notify"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the link management daemon",
	Long: `Run the daemon that watches the PipeWire graph and keeps links in
line with the configured rules. It reconnects automatically if the
server goes away and, unless disabled, reloads the config file when it
changes.

Example:
  relink daemon
  relink daemon --config ./relink.toml --log-level debug`,
	RunE: runDaemon,
}

var daemonLogFile string

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "",
		"write logs to this file instead of stderr")
}

func runDaemon(_ *cobra.Command, _ []string) error {
	path := configPath()
	broker := notify.NewBroker()
	defer broker.Close()

	d, err := daemon.New(path, broker)
	if err != nil {
		return err
	}

	// The flag wins over the config's log.file setting.
	logFile := daemonLogFile
	if logFile == "" {
		logFile = d.Config().Log.File
	}
	if logFile != "" {
		cleanup, err := log.InitFile(logFile)
		if err != nil {
			return fmt.Errorf("initializing log file: %w", err)
		}
		defer cleanup()
	}

	// Config log level applies unless a flag already set one.
	if logLevel == "" && !debugFlag {
		if lvl, err := log.ParseLevel(d.Config().Log.Level); err == nil {
			log.SetMinLevel(lvl)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go daemon.LogNotices(ctx, broker)

	if err := d.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	log.Info(log.CatDaemon, "daemon stopped")
	return nil
}
