package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:     "ospfd",
	Short:   "An OSPFv2 routing daemon",
	Version: version,

	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/ospfd/ospfd.yaml", "path to ospfd.yaml")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/ospfd.sock", "path to the daemon's API socket")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(eventsCmd)
}
