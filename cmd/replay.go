package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/sourcewatch/internal/agent"
	"firestige.xyz/sourcewatch/internal/capture"
	"firestige.xyz/sourcewatch/internal/capture/pcapfile"
	"firestige.xyz/sourcewatch/internal/config"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a pcap or pcapng file through the pipeline",
	Long: `Read Ethernet frames from a capture file, classify them and report
source addresses exactly as live capture would. Exits once every queued
record has been reported.

The metrics endpoint stays off unless metrics.enabled is set in the config
file or SOURCEWATCH_METRICS_ENABLED, so a replay never competes with a live
agent for the metrics port.

Example:
  sourcewatch replay traffic.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadReplayConfig()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		path := args[0]
		return agent.New(cfg, 1, func(int) (capture.Source, error) {
			return pcapfile.Open(path)
		}).Run(ctx)
	},
}

// loadReplayConfig loads the config with metrics off by default.
func loadReplayConfig() (*config.GlobalConfig, error) {
	return loadConfig(config.WithDefault("metrics.enabled", false))
}
