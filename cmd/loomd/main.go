// Command loomd is the conversation-orchestrator daemon: it loads
// configuration, opens the session store, wires the tool registry,
// providers, queue, context manager, notifier hub and orchestrator
// together behind a Chat Facade, and serves it over HTTP/WebSocket.
//
// Grounded on the teacher's internal/cli (cobra root + serve command),
// trimmed to the one subcommand this core needs — everything else
// (skills, MCP, channels, cron, delegate, GUI, ...) belongs to features
// this core's Non-goals exclude.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/pkg/logger"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loomd",
		Short:         "loomd is the conversation orchestrator daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.loom/config.yaml)")
	cmd.AddCommand(newServeCmd())
	return cmd
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(logger.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
