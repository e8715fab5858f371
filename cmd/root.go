// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/sourcewatch/internal/config"
)

// Global flags
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sourcewatch",
	Short: "sourcewatch - report the source address of every IPv4 TCP/UDP packet",
	Long: `sourcewatch attaches to a network interface, classifies every frame
(Ethernet, IPv4, TCP/UDP/ICMP) and reports the source address and port of
each IPv4 TCP or UDP packet as "addr: A.B.C.D, port: P".

Records travel from the capture lanes to a single consumer through a bounded
lock-free queue (SOURCE_ADDR_QUEUE). When the queue is full the newest record
is dropped and counted.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the global config named by --config.
func loadConfig(opts ...config.Option) (*config.GlobalConfig, error) {
	return config.Load(configFile, opts...)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
