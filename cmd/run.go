package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/sourcewatch/internal/agent"
	"firestige.xyz/sourcewatch/internal/capture"
	"firestige.xyz/sourcewatch/internal/capture/afpacket"
	"firestige.xyz/sourcewatch/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture live traffic on an interface",
	Long: `Attach one AF_PACKET ring per lane to the interface and report source
addresses until SIGINT or SIGTERM.

Lanes share a fanout group so the kernel spreads flows across them.
Failing to attach any lane is fatal.

Examples:
  sourcewatch run -i eth0
  sourcewatch run -c /etc/sourcewatch/config.yml --lanes 4`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return agent.New(cfg, cfg.Capture.Lanes, liveOpener(cfg.Capture)).Run(ctx)
	},
}

var (
	runIface string
	runLanes int
)

func init() {
	runCmd.Flags().StringVarP(&runIface, "iface", "i", "eth0",
		"interface to capture on (overrides capture.interface)")
	runCmd.Flags().IntVar(&runLanes, "lanes", 0,
		"number of capture lanes (overrides capture.lanes)")
}

// applyRunFlags lets explicitly set flags win over the config file.
func applyRunFlags(cmd *cobra.Command, cfg *config.GlobalConfig) {
	if cmd.Flags().Changed("iface") {
		cfg.Capture.Interface = runIface
	}
	if cmd.Flags().Changed("lanes") && runLanes > 0 {
		cfg.Capture.Lanes = runLanes
	}
}

func liveOpener(cc config.CaptureConfig) agent.SourceOpener {
	return func(lane int) (capture.Source, error) {
		h, err := afpacket.Open(afpacket.Config{
			Interface:   cc.Interface,
			SnapLen:     cc.SnapLen,
			BlockSize:   cc.BlockSize,
			NumBlocks:   cc.NumBlocks,
			FanoutID:    cc.FanoutID,
			Fanout:      cc.Lanes > 1,
			BPFFilter:   cc.BPFFilter,
			PollTimeout: cc.PollTimeoutDuration(),
		})
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", cc.Interface, err)
		}
		return h, nil
	}
}
