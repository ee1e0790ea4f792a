package main

import (
	"fmt"

	"github.com/davidbalbert/ospfd/config"
	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load(configPath)
		if err != nil {
			return err
		}

		o := conf.OSPF()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (router-id %s, %d areas, %d interfaces)\n",
			configPath, o.RouterID, len(o.Areas), len(o.InterfaceConfigs()))

		return nil
	},
}
